package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nbd-wtf/go-nostr"

	"xdao.co/pwapub/events"
)

// event_id prints the canonical serialization and id of a JSON event and
// checks the stored id and signature when present.
func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: event_id <event.json>")
		os.Exit(2)
	}
	b, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "read: %v\n", err)
		os.Exit(1)
	}
	var evt nostr.Event
	if err := json.Unmarshal(b, &evt); err != nil {
		fmt.Fprintf(os.Stderr, "parse: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(events.Canonical(&evt)))
	fmt.Println(events.ID(&evt))

	if evt.ID == "" && evt.Sig == "" {
		return
	}
	if err := events.Verify(&evt); err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		os.Exit(1)
	}
}
