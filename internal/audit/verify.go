package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

func readLastEntry(path string) (*Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var last *Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("parse entry: %w", err)
		}
		last = &entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return last, nil
}

// VerifyChain re-walks the audit log at path and fails on the first
// sequence, prev-hash, or hash break it finds.
func VerifyChain(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var expectedPrev *string
	var expectedSeq uint64 = 1

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			return fmt.Errorf("audit log %s: parse line %d: %w", path, line, err)
		}

		if entry.Seq != expectedSeq {
			return fmt.Errorf("audit log %s: seq mismatch at line %d: expected %d, got %d", path, line, expectedSeq, entry.Seq)
		}

		if !hashPtrEqual(entry.PrevHash, expectedPrev) {
			return fmt.Errorf("audit log %s: prev_hash mismatch at line %d", path, line)
		}

		expectedHash, err := computeHash(entry.Version, entry.Seq, entry.UnixMS, entry.Event, entry.PrevHash)
		if err != nil {
			return err
		}
		if expectedHash != entry.Hash {
			return fmt.Errorf("audit log %s: hash mismatch at line %d", path, line)
		}

		hash := entry.Hash
		expectedPrev = &hash
		expectedSeq++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}

	return nil
}

func hashPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
