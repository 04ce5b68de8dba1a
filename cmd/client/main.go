package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dim-str/TheLimitOrderBook/internal/common"
	obnet "github.com/dim-str/TheLimitOrderBook/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	owner := flag.String("owner", "", "Owner username (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['place', 'book']")

	// Order Parameters
	id := flag.Uint64("id", 0, "Order id (compulsory for 'place')")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	price := flag.Float64("price", 100.0, "Limit price")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	flag.Parse()

	if *owner == "" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *owner)

	// Start listening for reports (async).
	go readReports(conn)

	side := common.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = common.Sell
	}

	switch strings.ToLower(*action) {
	case "place":
		quantities := parseQuantities(*qtyStr)
		orderID := *id
		for _, q := range quantities {
			message := obnet.NewOrderMessage{
				OrderID:  orderID,
				Price:    *price,
				Quantity: q,
				Side:     side,
				Owner:    *owner,
			}
			if err := obnet.WriteFrame(conn, obnet.EncodeNewOrder(message)); err != nil {
				log.Printf("Failed to place order (Qty: %d): %v", q, err)
			} else {
				fmt.Printf("-> Sent %s Order %d: %d @ %.2f\n", strings.ToUpper(*sideStr), orderID, q, *price)
			}
			orderID++
			// Small optional sleep to ensure server processes sequence distinctly
			time.Sleep(5 * time.Millisecond)
		}

	case "book":
		if err := obnet.WriteFrame(conn, obnet.EncodeSnapshotRequest()); err != nil {
			log.Printf("Failed to request snapshot: %v", err)
		} else {
			fmt.Println("-> Sent Book Snapshot Request")
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	// Keep the client alive to receive execution reports.
	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

// parseQuantities splits a comma-separated string into a slice of uint64.
func parseQuantities(input string) []uint64 {
	parts := strings.Split(input, ",")
	var result []uint64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: Invalid quantity '%s', skipping.", p)
		}
	}
	return result
}

// readReports continuously reads and prints report frames from the server.
func readReports(conn net.Conn) {
	for {
		payload, err := obnet.ReadFrame(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}

		decoded, err := obnet.DecodeReport(payload)
		if err != nil {
			log.Printf("Error decoding report: %v", err)
			continue
		}

		switch report := decoded.(type) {
		case *obnet.Report:
			if report.MessageType == obnet.ErrorReport {
				fmt.Printf("\n[SERVER ERROR] %s\n", report.Err)
			} else {
				fmt.Printf("\n[EXECUTION] %s | Qty: %d | Price: %.2f | Taker: %d | Maker: %d\n",
					report.Side, report.Quantity, report.Price, report.TakerID, report.MakerID)
			}
		case *common.Snapshot:
			fmt.Printf("\n%s", report.String())
		}
	}
}
