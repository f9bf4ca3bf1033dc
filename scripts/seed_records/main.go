// seed_records injects attribution records into a records.db for smoke
// testing the retrieval flow without a real page visit. It is a standalone
// tool — not part of the module's test suite.
//
// Usage:
//
//	go run scripts/seed_records/main.go --db /data/records.db --ip 203.0.113.42 --code 123456
//	go run scripts/seed_records/main.go --db /data/records.db --ip 203.0.113.42 --code 123456 --platform ios --age 23h
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/netip"
	"time"

	"github.com/brpsystems/applinks/internal/provider"
	"github.com/brpsystems/applinks/internal/storage"
)

type options struct {
	dbPath   string
	ip       string
	code     string
	platform storage.Platform
	deviceID string
	age      time.Duration
}

// normalizeIP matches what the server stores: IPv6-mapped IPv4 addresses are
// unmapped so seeded records are found by plain-IPv4 retrieval requests.
func normalizeIP(raw string) (string, error) {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", fmt.Errorf("invalid IP %q: %w", raw, err)
	}
	return addr.Unmap().String(), nil
}

func parsePlatform(raw string) (storage.Platform, error) {
	p := storage.Platform(raw)
	if !p.Valid() {
		return "", fmt.Errorf("invalid platform %q (want android or ios)", raw)
	}
	return p, nil
}

// randomDeviceID generates a cookie-shaped device identifier: 10 hex chars.
func randomDeviceID() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func seed(opts options) (storage.Record, error) {
	store, err := storage.Open(opts.dbPath, 24*time.Hour)
	if err != nil {
		return storage.Record{}, fmt.Errorf("open %s: %w", opts.dbPath, err)
	}
	defer store.Close()

	rec := storage.Record{
		IP:           opts.ip,
		ProviderCode: opts.code,
		DeviceID:     opts.deviceID,
		CreatedAt:    storage.NowMillis(time.Now().Add(-opts.age)),
	}
	if err := store.Put(opts.platform, rec); err != nil {
		return storage.Record{}, fmt.Errorf("put record: %w", err)
	}
	return rec, nil
}

func main() {
	dbPath := flag.String("db", "", "Path to records.db (required)")
	ip := flag.String("ip", "", "Client IP the record is keyed on (required)")
	code := flag.String("code", "", "Six-digit provider code (required)")
	platformRaw := flag.String("platform", "android", "Platform bucket: android or ios")
	deviceID := flag.String("device", "", "Device identifier (random when empty)")
	age := flag.Duration("age", 0, "Backdate the record by this much (e.g. 23h)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("--db is required")
	}
	if !provider.ValidCode(*code) {
		log.Fatalf("--code must be a six-digit provider code, got %q", *code)
	}
	normIP, err := normalizeIP(*ip)
	if err != nil {
		log.Fatal(err)
	}
	platform, err := parsePlatform(*platformRaw)
	if err != nil {
		log.Fatal(err)
	}
	if *deviceID == "" {
		*deviceID = randomDeviceID()
	}

	rec, err := seed(options{
		dbPath:   *dbPath,
		ip:       normIP,
		code:     *code,
		platform: platform,
		deviceID: *deviceID,
		age:      *age,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("[seed_records] %s record: ip=%s code=%s device=%s createdAt=%s\n",
		platform, rec.IP, rec.ProviderCode, rec.DeviceID,
		time.UnixMilli(rec.CreatedAt).UTC().Format(time.RFC3339))
	fmt.Println("[seed_records] done — POST /api/" + string(platform) + "/record-retrieval from that IP to consume it")
}
