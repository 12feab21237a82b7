package auditlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"shopbot/internal/model"
)

// Filter narrows a Read. Zero fields match everything.
type Filter struct {
	Status  string
	Keyword string
	Limit   int
}

func (f Filter) match(o model.ReplyOutcome) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Keyword != "" && o.Keyword != f.Keyword {
		return false
	}
	return true
}

// Summary aggregates a day of outcomes.
type Summary struct {
	Date        string         `json:"date"`
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	TopKeywords []KeywordCount `json:"top_keywords"`
	Malformed   int            `json:"malformed"`
}

type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// Reader queries the files written by Writer.
type Reader struct {
	w *Writer
}

func NewReader(dir string) *Reader {
	return &Reader{w: NewWriter(dir)}
}

// Read returns the outcomes recorded on day that pass f, in file order.
// A missing file yields no outcomes. Malformed lines are skipped.
func (r *Reader) Read(ctx context.Context, day time.Time, f Filter) ([]model.ReplyOutcome, error) {
	var out []model.ReplyOutcome
	_, err := r.scan(ctx, day, func(o model.ReplyOutcome) bool {
		if f.match(o) {
			out = append(out, o)
		}
		return f.Limit <= 0 || len(out) < f.Limit
	})
	return out, err
}

// Summarize counts outcomes per status and lists the topN keywords that
// got a reply attempt.
func (r *Reader) Summarize(ctx context.Context, day time.Time, topN int) (Summary, error) {
	s := Summary{Date: day.UTC().Format("2006-01-02"), ByStatus: map[string]int{}}
	keywords := map[string]int{}

	malformed, err := r.scan(ctx, day, func(o model.ReplyOutcome) bool {
		s.Total++
		s.ByStatus[o.Status]++
		if o.Keyword != "" && o.Status != model.StatusDuplicate {
			keywords[o.Keyword]++
		}
		return true
	})
	if err != nil {
		return Summary{}, err
	}
	s.Malformed = malformed

	for k, n := range keywords {
		s.TopKeywords = append(s.TopKeywords, KeywordCount{Keyword: k, Count: n})
	}
	sort.Slice(s.TopKeywords, func(i, j int) bool {
		a, b := s.TopKeywords[i], s.TopKeywords[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Keyword < b.Keyword
	})
	if topN > 0 && len(s.TopKeywords) > topN {
		s.TopKeywords = s.TopKeywords[:topN]
	}
	return s, nil
}

// scan feeds each decodable line to fn until fn returns false. It returns
// the number of malformed lines seen.
func (r *Reader) scan(ctx context.Context, day time.Time, fn func(model.ReplyOutcome) bool) (int, error) {
	path := r.w.Path(day)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	malformed := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return malformed, err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var o model.ReplyOutcome
		if err := json.Unmarshal(line, &o); err != nil {
			malformed++
			continue
		}
		if !fn(o) {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return malformed, fmt.Errorf("read %s: %w", path, err)
	}
	return malformed, nil
}
