package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/ticker"
)

// extractAPI decodes the raw JSON pages captured by the API fetcher.
// Each page carries an entry array under src.API.EntriesField; entries
// map onto records via the configured field names.
func (e *Extractor) extractAPI(snap ticker.Snapshot, src ticker.Source) ([]ticker.Record, int, error) {
	if src.API.EntriesField == "" {
		return nil, 0, fmt.Errorf("source %s: api entries field not configured", src.Key)
	}
	if len(snap.Pages) == 0 {
		return nil, 0, nil
	}

	var (
		records  []ticker.Record
		skipped  int
		badPages int
	)
	for pageNo, page := range snap.Pages {
		entries, err := decodeEntries(page, src.API.EntriesField)
		if err != nil {
			badPages++
			e.logger.Warn("undecodable api page",
				zap.String("source", src.Key),
				zap.Int("page", pageNo),
				zap.Error(err),
			)
			continue
		}
		for i, entry := range entries {
			rec, err := e.entryFromAPI(entry, snap, src)
			if err != nil {
				skipped++
				e.logger.Warn("skipping malformed api entry",
					zap.String("source", src.Key),
					zap.Int("page", pageNo),
					zap.Int("index", i),
					zap.Error(err),
				)
				continue
			}
			records = append(records, rec)
		}
	}
	if badPages == len(snap.Pages) {
		return nil, 0, fmt.Errorf("%w: no api page matched field %q", ticker.ErrLayoutChanged, src.API.EntriesField)
	}
	return records, skipped + badPages, nil
}

func decodeEntries(page []byte, field string) ([]map[string]any, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(page, &doc); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	raw, ok := doc[field]
	if !ok {
		return nil, fmt.Errorf("field %q absent", field)
	}
	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	return entries, nil
}

func (e *Extractor) entryFromAPI(entry map[string]any, snap ticker.Snapshot, src ticker.Source) (ticker.Record, error) {
	author := ticker.Normalize(fieldString(entry, src.API.AuthorField))
	title := ticker.Normalize(fieldString(entry, src.API.TitleField))
	body := ticker.Normalize(fieldString(entry, src.API.BodyField))
	if title == "" && body == "" {
		return ticker.Record{}, fmt.Errorf("entry has neither title nor body")
	}

	published, err := fieldTime(entry, src.API.TimeField, src.Selectors.TimeFormat)
	if err != nil {
		return ticker.Record{}, err
	}

	id := ""
	if key := fieldString(entry, src.API.IDField); key != "" {
		id = ticker.EntryID(src.Key, key)
	} else {
		id = ticker.ContentID(src.Key, author, title, body)
	}

	return ticker.Record{
		ID:          id,
		Source:      src.Key,
		ObservedAt:  snap.CapturedAt,
		PublishedAt: published,
		Author:      author,
		Title:       title,
		Body:        body,
	}, nil
}

// fieldString renders an entry field as a string. JSON numbers used as
// identifiers are rendered without an exponent so identities stay
// stable.
func fieldString(entry map[string]any, field string) string {
	if field == "" {
		return ""
	}
	switch v := entry[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func fieldTime(entry map[string]any, field, layout string) (time.Time, error) {
	if field == "" {
		return time.Time{}, nil
	}
	raw := fieldString(entry, field)
	if raw == "" {
		return time.Time{}, fmt.Errorf("entry timestamp missing")
	}
	t, err := parseTime(raw, layout)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse entry timestamp: %w", err)
	}
	return t, nil
}
