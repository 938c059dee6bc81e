package analyzer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// RecipientCount is one recipient of a sender with its occurrence count.
type RecipientCount struct {
	Address string `json:"address" yaml:"address" toml:"address"`
	Count   int    `json:"count" yaml:"count" toml:"count"`
}

// SenderAggregate holds the deduplicated recipients of one sender.
type SenderAggregate struct {
	Sender     string           `json:"sender" yaml:"sender" toml:"sender"`
	Recipients []RecipientCount `json:"recipients" yaml:"recipients" toml:"recipients"`

	index map[string]int
}

// Aggregator reduces record lines into per-sender recipient counts. Counts
// depend only on the multiset of (sender, recipient) pairs, never on line
// order. Output order follows first insertion but is not part of the contract.
// An Aggregator is not safe for concurrent use.
type Aggregator struct {
	senders []*SenderAggregate
	index   map[string]*SenderAggregate
	records int
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{index: make(map[string]*SenderAggregate)}
}

// AddRecord folds one record line into the aggregate. The line is split on
// whitespace: the first token is the sender and every further token is a
// recipient. Blank lines are ignored.
func (a *Aggregator) AddRecord(line string) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return
	}
	agg := a.sender(tokens[0])
	for _, rcpt := range tokens[1:] {
		agg.add(rcpt)
	}
	a.records++
}

// ReadRecords folds every line of r into the aggregate and returns the number
// of non-empty records read.
func (a *Aggregator) ReadRecords(r io.Reader) (int, error) {
	before := a.records
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			a.AddRecord(line)
		}
		if err == io.EOF {
			return a.records - before, nil
		}
		if err != nil {
			return a.records - before, fmt.Errorf("%w: reading records: %w", ErrReadFailed, err)
		}
	}
}

func (a *Aggregator) sender(address string) *SenderAggregate {
	if agg, ok := a.index[address]; ok {
		return agg
	}
	agg := &SenderAggregate{Sender: address, index: make(map[string]int)}
	a.index[address] = agg
	a.senders = append(a.senders, agg)
	return agg
}

func (s *SenderAggregate) add(recipient string) {
	if i, ok := s.index[recipient]; ok {
		s.Recipients[i].Count++
		return
	}
	s.index[recipient] = len(s.Recipients)
	s.Recipients = append(s.Recipients, RecipientCount{Address: recipient, Count: 1})
}

// Count returns how many times recipient occurred for sender (0 if never).
func (a *Aggregator) Count(sender, recipient string) int {
	agg, ok := a.index[sender]
	if !ok {
		return 0
	}
	i, ok := agg.index[recipient]
	if !ok {
		return 0
	}
	return agg.Recipients[i].Count
}

// Senders returns the aggregate entries. The slice is owned by the Aggregator.
func (a *Aggregator) Senders() []*SenderAggregate { return a.senders }

// SenderCount returns the number of distinct senders.
func (a *Aggregator) SenderCount() int { return len(a.senders) }

// Records returns the number of record lines folded so far.
func (a *Aggregator) Records() int { return a.records }

// Reset releases every aggregate entry.
func (a *Aggregator) Reset() {
	a.senders = nil
	a.index = make(map[string]*SenderAggregate)
	a.records = 0
}

// WriteReport serializes the aggregate to w.
//
// The text format writes one line per sender: the sender address followed by
// " <count>: <recipient>" for each of its recipients. The json, yaml and toml
// formats carry the same (sender, recipient, count) triples.
func (a *Aggregator) WriteReport(w io.Writer, format ReportFormat) error {
	switch format {
	case ReportFormatText, "":
		bw := bufio.NewWriter(w)
		for _, s := range a.senders {
			bw.WriteString(s.Sender)
			for _, r := range s.Recipients {
				fmt.Fprintf(bw, " %d: %s", r.Count, r.Address)
			}
			bw.WriteByte('\n')
		}
		return bw.Flush()
	case ReportFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a.entries())
	case ReportFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(a.entries()); err != nil {
			return err
		}
		return enc.Close()
	case ReportFormatTOML:
		// TOML documents are tables, so the array hangs off a top-level key.
		doc := struct {
			Senders []*SenderAggregate `toml:"senders"`
		}{Senders: a.entries()}
		return toml.NewEncoder(w).Encode(doc)
	default:
		return fmt.Errorf("%w: unsupported report format '%s'", ErrConfigValidation, format)
	}
}

// entries returns a non-nil slice so empty reports encode as [] rather than null.
func (a *Aggregator) entries() []*SenderAggregate {
	if a.senders == nil {
		return []*SenderAggregate{}
	}
	return a.senders
}
