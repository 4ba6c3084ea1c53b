package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"parley/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Read-only inspector for the badger store. Dumps session, punishment and
// user records as a table so an operator can see what the admission and
// moderation paths will decide without attaching a debugger.
func main() {
	dbPath := flag.String("db", "/tmp/parley/badger", "Path to badger DB")
	prefix := flag.String("prefix", "session:", "Prefix to scan (session:, punishment:, user:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "User", "State", "Expires", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			// The session_user: entries are a secondary index, values are empty
			if strings.HasPrefix(rawKey, "session_user:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				row, err := decodeRow(rawKey, v)
				if err != nil {
					// Log the broken record and keep scanning
					fmt.Printf("Error decoding key %s: %v\n", rawKey, err)
					return nil
				}
				table.Append(row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func decodeRow(key string, value []byte) ([]string, error) {
	switch {
	case strings.HasPrefix(key, "session:"):
		var s struct {
			UserID    string    `cbor:"user_id"`
			ExpiresAt time.Time `cbor:"expires_at"`
			Valid     bool      `cbor:"valid"`
			Device    string    `cbor:"device_info"`
		}
		if err := cbor.Unmarshal(value, &s); err != nil {
			return nil, err
		}
		state := color.Green.Sprint("valid")
		if !s.Valid {
			state = color.Red.Sprint("revoked")
		} else if s.ExpiresAt.Before(time.Now()) {
			state = color.Yellow.Sprint("expired")
		}
		return []string{shortKey(key), shortID(s.UserID), state,
			s.ExpiresAt.Format(time.RFC3339), s.Device}, nil

	case strings.HasPrefix(key, "punishment:"):
		var p struct {
			UserID    string     `cbor:"user_id"`
			Type      string     `cbor:"type"`
			Reason    string     `cbor:"reason"`
			ExpiresAt *time.Time `cbor:"expires_at"`
		}
		if err := cbor.Unmarshal(value, &p); err != nil {
			return nil, err
		}
		state := color.Red.Sprint(p.Type)
		if p.Type == string(domain.Mute) {
			state = color.Yellow.Sprint(p.Type)
		}
		expires := "permanent"
		if p.ExpiresAt != nil {
			expires = p.ExpiresAt.Format(time.RFC3339)
		}
		return []string{shortKey(key), shortID(p.UserID), state, expires, p.Reason}, nil

	case strings.HasPrefix(key, "user:"):
		var u struct {
			ID          string `cbor:"id"`
			DisplayName string `cbor:"display_name"`
		}
		if err := cbor.Unmarshal(value, &u); err != nil {
			return nil, err
		}
		return []string{shortKey(key), shortID(u.ID), "account", "",
			u.DisplayName}, nil

	case strings.HasPrefix(key, "msg:"):
		var m struct {
			SenderID string `cbor:"sender_id"`
			Content  string `cbor:"content"`
		}
		if err := cbor.Unmarshal(value, &m); err != nil {
			return nil, err
		}
		return []string{shortKey(key), shortID(m.SenderID), "message", "", m.Content}, nil
	}
	return []string{shortKey(key), "", "?", "", fmt.Sprintf("%d bytes", len(value))}, nil
}

// shortKey keeps tokens and UUIDs in keys from flooding the terminal.
func shortKey(key string) string {
	if len(key) > 40 {
		return key[:40] + "…"
	}
	return key
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return db, nil
}
