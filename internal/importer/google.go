package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Napageneral/rolodex/internal/accounts"
	"github.com/Napageneral/rolodex/internal/equiv"
	"github.com/Napageneral/rolodex/internal/fields"
	"github.com/Napageneral/rolodex/internal/store"
)

// GoogleAccountType is the account type of records pulled from Google
// Contacts.
const GoogleAccountType = "com.google"

// GoogleSource pulls Google Contacts through gogcli. Each Google contact
// becomes one contact with a single raw record in the (account, com.google)
// account.
type GoogleSource struct {
	Account string
	Workers int
	QPS     float64
	// Run executes gog with args and returns its combined output.
	Run func(ctx context.Context, args ...string) ([]byte, error)
	Logf func(format string, args ...any)
}

// NewGoogleSource returns a source for account, checking gog is installed.
func NewGoogleSource(account string) (*GoogleSource, error) {
	if strings.TrimSpace(account) == "" {
		return nil, fmt.Errorf("account email is required for google contacts")
	}
	if _, err := exec.LookPath("gog"); err != nil {
		return nil, fmt.Errorf("gogcli (gog) not found in PATH. Install with: brew install steipete/tap/gogcli")
	}
	return &GoogleSource{Account: account}, nil
}

func (g *GoogleSource) withDefaults() *GoogleSource {
	out := *g
	if out.Workers <= 0 {
		out.Workers = 16
	}
	if out.QPS <= 0 {
		out.QPS = 80
	}
	if out.Run == nil {
		out.Run = func(ctx context.Context, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, "gog", args...).CombinedOutput()
		}
	}
	if out.Logf == nil {
		out.Logf = func(string, ...any) {}
	}
	return &out
}

type gogContactsListResponse struct {
	Contacts      []gogContact `json:"contacts"`
	NextPageToken string       `json:"nextPageToken"`
}

type gogContact struct {
	Resource string `json:"resource"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

type gogContactGetResponse struct {
	Found   bool           `json:"found"`
	Contact gogContactFull `json:"contact"`
}

type gogContactFull struct {
	ResourceName string `json:"resourceName"`
	Names        []struct {
		DisplayName string `json:"displayName"`
	} `json:"names"`
	EmailAddresses []struct {
		Value string `json:"value"`
	} `json:"emailAddresses"`
	PhoneNumbers []struct {
		CanonicalForm string `json:"canonicalForm"`
		Value         string `json:"value"`
	} `json:"phoneNumbers"`
}

// googleContact is a Google contact with its details merged in.
type googleContact struct {
	Resource string
	Name     string
	Emails   []string
	Phones   []string
}

func (g *GoogleSource) list(ctx context.Context) ([]gogContact, error) {
	var out []gogContact
	for _, sub := range [][]string{{"contacts", "list"}, {"contacts", "other", "list"}} {
		page := ""
		for {
			args := append(append([]string{}, sub...), "--json", "--max", "500", "--account", g.Account)
			if page != "" {
				args = append(args, "--page", page)
			}
			b, err := g.Run(ctx, args...)
			if err != nil {
				return nil, fmt.Errorf("gog %s failed: %w (output: %s)", strings.Join(sub, " "), err, string(b))
			}
			var resp gogContactsListResponse
			if err := json.Unmarshal(b, &resp); err != nil {
				return nil, fmt.Errorf("failed to parse %s json: %w", strings.Join(sub, " "), err)
			}
			out = append(out, resp.Contacts...)
			if resp.NextPageToken == "" || len(resp.Contacts) == 0 {
				break
			}
			page = resp.NextPageToken
		}
	}
	return out, nil
}

func (g *GoogleSource) details(ctx context.Context, resource string) (gogContactFull, bool, error) {
	if !strings.HasPrefix(resource, "people/") {
		return gogContactFull{}, false, nil
	}
	b, err := g.Run(ctx, "contacts", "get", resource, "--json", "--account", g.Account)
	if err != nil {
		return gogContactFull{}, false, fmt.Errorf("gog contacts get failed (%s): %w (output: %s)", resource, err, string(b))
	}
	var resp gogContactGetResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return gogContactFull{}, false, fmt.Errorf("failed to parse contacts get json: %w", err)
	}
	if !resp.Found && resp.Contact.ResourceName == "" {
		return gogContactFull{}, false, nil
	}
	return resp.Contact, true, nil
}

// fetch lists every contact and fetches details with a rate limited worker
// pool. Output order follows the listing.
func (g *GoogleSource) fetch(ctx context.Context) ([]googleContact, error) {
	listed, err := g.list(ctx)
	if err != nil {
		return nil, err
	}

	interval := time.Duration(float64(time.Second) / g.QPS)
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	out := make([]googleContact, len(listed))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < g.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					continue
				case <-ticker.C:
				}
				c := listed[i]
				gc := googleContact{Resource: c.Resource, Name: strings.TrimSpace(c.Name)}
				full, ok, err := g.details(ctx, c.Resource)
				if err != nil {
					g.Logf("google: %v", err)
				}
				if ok {
					if len(full.Names) > 0 && strings.TrimSpace(full.Names[0].DisplayName) != "" {
						gc.Name = strings.TrimSpace(full.Names[0].DisplayName)
					}
					for _, e := range full.EmailAddresses {
						gc.Emails = append(gc.Emails, e.Value)
					}
					for _, p := range full.PhoneNumbers {
						v := p.Value
						if strings.TrimSpace(v) == "" {
							v = p.CanonicalForm
						}
						gc.Phones = append(gc.Phones, v)
					}
				}
				gc.Emails = distinct(fields.Email, append(gc.Emails, c.Email))
				gc.Phones = distinct(fields.Phone, append(gc.Phones, c.Phone))
				out[i] = gc
			}
		}()
	}
	for i := range listed {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// distinct trims values, drops empties and keeps the first of each
// equivalent set.
func distinct(kind fields.Kind, values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if kind == fields.Email {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		dup := false
		for _, seen := range out {
			if equiv.Equal(kind, seen, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

// Pull fetches the account's Google contacts and writes those not imported
// before, keyed by resource name.
func (g *GoogleSource) Pull(ctx context.Context, st *store.Store) (Result, error) {
	g = g.withDefaults()
	start := time.Now()
	fetched, err := g.fetch(ctx)
	if err != nil {
		return Result{}, err
	}

	ref := accounts.Ref{Name: g.Account, Type: GoogleAccountType}
	f := &File{}
	seen := map[string]bool{}
	for _, c := range fetched {
		if len(c.Emails) == 0 && len(c.Phones) == 0 {
			continue
		}
		id := c.Resource
		if id == "" {
			id = strings.Join(append(append([]string{}, c.Emails...), c.Phones...), ",")
		}
		key := "google:" + id
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, ok, err := st.QueryContactHeader(ctx, key); err != nil {
			return Result{}, err
		} else if ok {
			continue
		}
		rec := RawRecordDoc{Account: ref, DisplayName: c.Name}
		if c.Name != "" {
			rec.Fields = append(rec.Fields, FieldDoc{Kind: string(fields.Name), Text: c.Name})
		}
		for _, p := range c.Phones {
			rec.Fields = append(rec.Fields, FieldDoc{Kind: string(fields.Phone), Text: p})
		}
		for _, e := range c.Emails {
			rec.Fields = append(rec.Fields, FieldDoc{Kind: string(fields.Email), Text: e})
		}
		f.Contacts = append(f.Contacts, ContactDoc{LookupKey: key, DisplayName: c.Name, RawRecords: []RawRecordDoc{rec}})
	}

	res, err := Import(ctx, st, f)
	if err != nil {
		return Result{}, err
	}
	res.Duration = time.Since(start)
	return res, nil
}
