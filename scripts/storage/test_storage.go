package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/stake-plus/escrow-market/src/api/config"
	"github.com/stake-plus/escrow-market/src/api/storage"
)

func main() {
	cfg, err := config.LoadStorage()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeStore, err := storage.FromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %q store: %v", cfg.Backend, err)
	}
	defer closeStore(ctx)

	payload := []byte("storage smoke test " + uuid.NewString())
	obj, err := store.Put(ctx, "smoke.txt", "text/plain", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("Put: %v", err)
	}
	log.Printf("Stored on %s:", store.Backend())
	log.Printf("  CID: %s", obj.CID)
	log.Printf("  Size: %d", obj.Size)

	if want := storage.ComputeCID(payload); obj.CID != want {
		log.Fatalf("CID mismatch: got %s want %s", obj.CID, want)
	}

	// a second put of the same bytes must be a no-op
	again, err := store.Put(ctx, "other-name.txt", "text/plain", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("Put again: %v", err)
	}
	if again.CID != obj.CID {
		log.Fatalf("re-put changed CID to %s", again.CID)
	}

	rc, meta, err := store.Open(ctx, obj.CID)
	if err != nil {
		log.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		log.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		log.Fatal("content mismatch")
	}
	log.Printf("  Name: %s", meta.Name)
	log.Printf("  Content-Type: %s", meta.ContentType)
	log.Printf("  Round trip OK")
}
