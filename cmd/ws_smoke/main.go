package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"raid_backend/internal/service"

	"github.com/gorilla/websocket"
)

// Smoke test for the room event stream: subscribes to a room and prints
// events until the timeout elapses.
func main() {
	roomID := flag.String("room", "", "room id to watch")
	address := flag.String("address", "0x0000000000000000000000000000000000000001", "address to authenticate as")
	timeout := flag.Duration("timeout", 60*time.Second, "how long to listen")
	flag.Parse()

	if *roomID == "" {
		log.Fatal("-room is required")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	service.InitJWT()
	token, err := service.GenerateJWT(*address)
	if err != nil {
		log.Fatalf("gen token: %v", err)
	}

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	url := fmt.Sprintf("ws://127.0.0.1:%s/ws/rooms/%s?token=%s", port, *roomID, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	log.Printf("subscribed to room %s", *roomID)
	deadline := time.Now().Add(*timeout)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Printf("read: %v", err)
			return
		}
		fmt.Println(string(msg))
	}
}
