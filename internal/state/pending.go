package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/zyahav/cloud-harness/internal/home"
)

// Observer-mode inbox capture.
//
// Observers may not touch state.json. Captures go to a dedicated append-only
// JSONL file next to the registry; the controller drains it into the
// registry on its next lease-held save. O_APPEND keeps concurrent captures
// from interleaving (one capture is far below PIPE_BUF).

// AppendPending appends an inbox item to the pending capture log.
func AppendPending(root string, item InboxItem) error {
	if err := home.EnsureDirs(root); err != nil {
		return err
	}
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(home.InboxPendingPath(root), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// LoadPending reads all pending inbox captures. Malformed lines are skipped
// rather than failing the drain; a truncated tail line from a crashed
// capture must not wedge the controller.
func (s *Store) LoadPending() ([]InboxItem, error) {
	f, err := os.Open(home.InboxPendingPath(s.root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var items []InboxItem
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item InboxItem
		if err := json.Unmarshal(line, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading pending inbox: %w", err)
	}
	return items, nil
}

// Drain folds pending captures into st.Inbox. Call under the lease, then
// Save, then ClearPending. Items already present (by id) are skipped so a
// failed ClearPending cannot duplicate entries.
func (s *Store) Drain(st *State) (int, error) {
	items, err := s.LoadPending()
	if err != nil {
		return 0, err
	}
	drained := 0
	for _, item := range items {
		if st.InboxItemByID(item.ID) != nil {
			continue
		}
		st.Inbox = append(st.Inbox, item)
		drained++
	}
	return drained, nil
}

// ClearPending removes the pending capture log after a successful drain+save.
func (s *Store) ClearPending() error {
	err := os.Remove(home.InboxPendingPath(s.root))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
