// Minimal end‑to‑end run against a live escrow market API.
package main

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var baseURL = getenv("API_URL", "http://localhost:8080")

type wallet struct {
	key   *ecdsa.PrivateKey
	addr  string
	token string
	id    uint64
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	client := login()
	freelancer := login()
	setRole(freelancer, "freelancer")

	jobID := createJob(client)
	bidID := placeBid(freelancer, jobID)
	acceptBid(client, jobID, bidID)

	sendMessage(client, freelancer.id, jobID)
	checkUnread(freelancer)

	cid := upload(client)
	download(cid)

	fmt.Println("✓ all endpoints passed")
}

// ----------------------------- auth

func login() *wallet {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("keygen: %v", err)
	}
	w := &wallet{key: key, addr: crypto.PubkeyToAddress(key.PublicKey).Hex()}

	var ch struct{ Nonce, Message string }
	doJSON("POST", "/auth/challenge", map[string]any{"address": w.addr}, &ch, http.StatusOK)
	if ch.Message == "" {
		log.Fatal("challenge: empty message")
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(ch.Message)), key)
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	var resp struct {
		Token string
		User  struct{ ID uint64 }
	}
	doJSON("POST", "/auth/verify", map[string]any{
		"address":   w.addr,
		"signature": hexutil.Encode(sig),
	}, &resp, http.StatusOK)
	if resp.Token == "" {
		log.Fatal("verify: empty token")
	}
	w.token, w.id = resp.Token, resp.User.ID
	return w
}

func setRole(w *wallet, role string) {
	doAuth(w.token, "PATCH", "/users/me", map[string]any{"role": role}, nil, http.StatusOK)
}

// ----------------------------- marketplace

func createJob(w *wallet) uint64 {
	var resp struct{ ID uint64 }
	doAuth(w.token, "POST", "/jobs", map[string]any{
		"title":       "integration-test " + uuid.NewString()[:8],
		"description": "Created by the end-to-end script, safe to delete.",
		"budget":      "0.01",
		"duration":    "less_than_1_week",
		"skills":      []string{"testing"},
	}, &resp, http.StatusCreated)
	return resp.ID
}

func placeBid(w *wallet, jobID uint64) uint64 {
	var resp struct{ ID uint64 }
	doAuth(w.token, "POST", "/bids", map[string]any{
		"jobId":     jobID,
		"proposal":  "I can do this quickly.",
		"bidAmount": "0.008",
	}, &resp, http.StatusCreated)
	return resp.ID
}

func acceptBid(w *wallet, jobID, bidID uint64) {
	doAuth(w.token, "POST", "/bids/"+strconv.FormatUint(bidID, 10)+"/accept", nil, nil, http.StatusOK)

	var job struct{ Status string }
	doJSON("GET", "/jobs/"+strconv.FormatUint(jobID, 10), nil, &job, http.StatusOK)
	if job.Status != "in_progress" {
		log.Fatalf("accept: job status %q", job.Status)
	}
}

func sendMessage(w *wallet, to, jobID uint64) {
	doAuth(w.token, "POST", "/messages", map[string]any{
		"recipientId": to,
		"jobId":       jobID,
		"body":        "hello from the integration test",
	}, nil, http.StatusCreated)
}

func checkUnread(w *wallet) {
	var resp struct{ Count int64 }
	doAuth(w.token, "GET", "/notifications/unread-count", nil, &resp, http.StatusOK)
	if resp.Count == 0 {
		log.Fatal("notifications: expected unread items")
	}
}

// ----------------------------- files

func upload(w *wallet) string {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "hello.txt")
	_, _ = part.Write([]byte("integration " + uuid.NewString()))
	_ = mw.Close()

	req, _ := http.NewRequest("POST", baseURL+"/api/ipfs/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.token)
	var resp struct{ CID string }
	send(req, &resp, http.StatusCreated)
	return resp.CID
}

func download(cid string) {
	res, err := http.Get(baseURL + "/api/ipfs/" + cid)
	if err != nil {
		log.Fatalf("download: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK || len(body) == 0 {
		log.Fatalf("download %s: status %d, %d bytes", cid, res.StatusCode, len(body))
	}
}

// ----------------------------- helpers

func doAuth(token, method, path string, body, out any, want int) {
	doReq(method, path, token, body, out, want)
}

func doJSON(method, path string, body, out any, want int) {
	doReq(method, path, "", body, out, want)
}

func doReq(method, path, token string, body, out any, want int) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("%s %s encode: %v", method, path, err)
		}
	}
	req, _ := http.NewRequest(method, baseURL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	send(req, out, want)
}

func send(req *http.Request, out any, want int) {
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()
	if want != 0 && res.StatusCode != want {
		msg, _ := io.ReadAll(res.Body)
		log.Fatalf("%s %s: want %d got %d: %s", req.Method, req.URL.Path, want, res.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			log.Fatalf("%s %s decode: %v", req.Method, req.URL.Path, err)
		}
	}
}
