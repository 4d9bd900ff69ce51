// Command badger_inspect dumps stored chat messages as a table, for
// poking at a gateway data directory offline.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

// inspectMessage mirrors the stored message wire shape.
type inspectMessage struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID *int64 `json:"receiver_id"`
	Lang       string `json:"lang"`
	At         int64  `json:"at"`
}

func main() {
	dbPath := flag.String("db", "./data", "Path to badger DB")
	// "pub:" lists the public feed; "dm:" walks every conversation.
	prefix := flag.String("prefix", "pub:", "Key prefix to scan")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Time", "Sender", "Receiver", "Lang", "Content"})
	table.SetAutoWrapText(false)
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
			err := item.Value(func(v []byte) error {
				var m inspectMessage
				if err := json.Unmarshal(v, &m); err != nil {
					// Log and keep walking instead of aborting the scan.
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				receiver := "public"
				if m.ReceiverID != nil {
					receiver = fmt.Sprintf("%d", *m.ReceiverID)
				}

				content := m.Content
				if len(content) > 60 {
					content = content[:57] + "..."
				}

				table.Append([]string{
					string(item.Key()),
					time.Unix(0, m.At).UTC().Format(time.RFC3339),
					fmt.Sprintf("%d", m.SenderID),
					receiver,
					m.Lang,
					content,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}

	table.Render()
}
