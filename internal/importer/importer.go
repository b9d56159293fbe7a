// Package importer loads contact fixtures from YAML into the record store.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Napageneral/rolodex/internal/accounts"
	"github.com/Napageneral/rolodex/internal/calllog"
	"github.com/Napageneral/rolodex/internal/contacts"
	"github.com/Napageneral/rolodex/internal/fields"
	"github.com/Napageneral/rolodex/internal/store"
)

// File is the document layout of an import file.
type File struct {
	Contacts   []ContactDoc   `yaml:"contacts"`
	RawRecords []RawRecordDoc `yaml:"raw_records"`
	Groups     []GroupDoc     `yaml:"groups"`
	Calls      []CallDoc      `yaml:"calls"`
}

type ContactDoc struct {
	LookupKey   string         `yaml:"lookup_key"`
	DisplayName string         `yaml:"display_name"`
	RawRecords  []RawRecordDoc `yaml:"raw_records"`
}

type RawRecordDoc struct {
	Account     accounts.Ref    `yaml:"account"`
	DisplayName string          `yaml:"display_name"`
	PhotoID     *int64          `yaml:"photo_id"`
	Deleted     bool            `yaml:"deleted"`
	Fields      []FieldDoc      `yaml:"fields"`
	StreamItems []StreamItemDoc `yaml:"stream_items"`
}

type FieldDoc struct {
	Kind     string            `yaml:"kind"`
	Text     string            `yaml:"text"`
	Attrs    map[string]string `yaml:"attrs"`
	Presence []PresenceDoc     `yaml:"presence"`
}

type PresenceDoc struct {
	Presence int       `yaml:"presence"`
	Status   string    `yaml:"status"`
	Label    string    `yaml:"label"`
	At       time.Time `yaml:"at"`
}

type StreamItemDoc struct {
	Text string    `yaml:"text"`
	At   time.Time `yaml:"at"`
}

type GroupDoc struct {
	Account  accounts.Ref `yaml:"account"`
	Title    string       `yaml:"title"`
	SystemID string       `yaml:"system_id"`
}

type CallDoc struct {
	Number           string    `yaml:"number"`
	Type             string    `yaml:"type"`
	AccountComponent string    `yaml:"account_component"`
	AccountID        string    `yaml:"account_id"`
	At               time.Time `yaml:"at"`
}

// Result counts what an import wrote.
type Result struct {
	Contacts    int           `json:"contacts"`
	RawRecords  int           `json:"raw_records"`
	Fields      int           `json:"fields"`
	Groups      int           `json:"groups"`
	StreamItems int           `json:"stream_items"`
	Calls       int           `json:"calls"`
	Duration    time.Duration `json:"duration"`
}

// Parse decodes an import document.
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to parse import file: %w", err)
	}
	return &f, nil
}

// ImportFile parses path and writes it with Import.
func ImportFile(ctx context.Context, st *store.Store, path string) (Result, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer fh.Close()
	f, err := Parse(fh)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}
	return Import(ctx, st, f)
}

// Import writes f in one transaction. Nothing is written if any row fails.
func Import(ctx context.Context, st *store.Store, f *File) (Result, error) {
	start := time.Now()
	var res Result
	err := st.Update(ctx, func(w *store.Writer) error {
		for _, c := range f.Contacts {
			if c.LookupKey == "" {
				return fmt.Errorf("contact %q: lookup_key is required", c.DisplayName)
			}
			cid, err := w.InsertContact(ctx, c.LookupKey, c.DisplayName)
			if err != nil {
				return err
			}
			res.Contacts++
			for _, r := range c.RawRecords {
				if err := importRawRecord(ctx, w, &cid, r, &res); err != nil {
					return fmt.Errorf("contact %s: %w", c.LookupKey, err)
				}
			}
		}
		for _, r := range f.RawRecords {
			if err := importRawRecord(ctx, w, nil, r, &res); err != nil {
				return err
			}
		}
		for _, g := range f.Groups {
			if _, err := w.InsertGroup(ctx, contacts.GroupMeta{
				AccountName: g.Account.Name,
				AccountType: g.Account.Type,
				Title:       g.Title,
				SystemID:    g.SystemID,
			}); err != nil {
				return err
			}
			res.Groups++
		}
		for i, c := range f.Calls {
			typ, err := calllog.ParseCallType(c.Type)
			if err != nil {
				return fmt.Errorf("call %d: %w", i, err)
			}
			row := calllog.Row{
				Number:           c.Number,
				Type:             typ,
				AccountComponent: c.AccountComponent,
				AccountID:        c.AccountID,
			}
			if err := w.InsertCall(ctx, row, c.At); err != nil {
				return err
			}
			res.Calls++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func importRawRecord(ctx context.Context, w *store.Writer, contactID *int64, r RawRecordDoc, res *Result) error {
	if r.Account.Name == "" || r.Account.Type == "" {
		return fmt.Errorf("raw record %q: account name and type are required", r.DisplayName)
	}
	id, err := w.InsertRawRecord(ctx, store.RawRecordInput{
		ContactID:   contactID,
		AccountName: r.Account.Name,
		AccountType: r.Account.Type,
		DisplayName: r.DisplayName,
		PhotoID:     r.PhotoID,
		Deleted:     r.Deleted,
	})
	if err != nil {
		return err
	}
	res.RawRecords++

	for _, fd := range r.Fields {
		v := fields.Value{Kind: fields.Other(fd.Kind), Text: fd.Text, Attrs: fd.Attrs}
		fieldID, err := w.InsertField(ctx, id, v)
		if err != nil {
			return err
		}
		if fieldID == 0 {
			continue
		}
		res.Fields++
		for _, p := range fd.Presence {
			st := contacts.PresenceStatus{Presence: p.Presence, Status: p.Status, Label: p.Label, Timestamp: p.At}
			if err := w.InsertPresence(ctx, fieldID, st); err != nil {
				return err
			}
		}
	}
	for _, s := range r.StreamItems {
		if err := w.InsertStreamItem(ctx, id, s.Text, s.At); err != nil {
			return err
		}
		res.StreamItems++
	}
	return nil
}
