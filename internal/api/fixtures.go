package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gitdm/gitdm/internal/config"
)

// Dataset holds the accounts and records served by the dev server.
type Dataset struct {
	users map[string][]byte // email -> bcrypt hash

	mu        sync.RWMutex
	resources map[Resource][]record
}

type record struct {
	id   string
	body json.RawMessage
}

// NewDataset builds a dataset from cfg, hashing plaintext passwords.
func NewDataset(cfg *config.DevServer) (*Dataset, error) {
	d := &Dataset{
		users:     make(map[string][]byte, len(cfg.Users)),
		resources: make(map[Resource][]record),
	}
	for _, u := range cfg.Users {
		hash := []byte(u.PasswordHash)
		if u.Password != "" {
			var err error
			if hash, err = bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.MinCost); err != nil {
				return nil, fmt.Errorf("hashing password of '%s': %w", u.Email, err)
			}
		}
		d.users[u.Email] = hash
	}

	names := make([]string, 0, len(cfg.Resources))
	for name := range cfg.Resources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res, err := ParseResource(name)
		if err != nil {
			return nil, err
		}
		for _, item := range cfg.Resources[name] {
			body, err := json.Marshal(item)
			if err != nil {
				return nil, fmt.Errorf("encoding %s item: %w", name, err)
			}
			d.resources[res] = append(d.resources[res], record{
				id:   fmt.Sprint(item["id"]),
				body: body,
			})
		}
	}
	return d, nil
}

// DefaultDataset is a small clinical dataset with a single demo account.
func DefaultDataset() *Dataset {
	patient := uuid.NewString()
	encounter := uuid.NewString()

	cfg := &config.DevServer{
		Users: []config.UserConfig{{Email: "demo@gitdm.local", Password: "demo"}},
		Resources: map[string][]map[string]any{
			string(Patients): {
				{"id": patient, "name": "Ada Lovelace", "date_of_birth": "1815-12-10"},
				{"id": uuid.NewString(), "name": "Alan Turing", "date_of_birth": "1912-06-23"},
			},
			string(Encounters): {
				{"id": encounter, "patient": patient, "kind": "outpatient", "date": "2026-03-02"},
			},
			string(LabResults): {
				{"id": uuid.NewString(), "patient": patient, "test": "HbA1c", "value": 6.8, "unit": "%"},
				{"id": uuid.NewString(), "patient": patient, "test": "Fasting glucose", "value": 7.1, "unit": "mmol/L"},
			},
			string(MedicationOrders): {
				{"id": uuid.NewString(), "patient": patient, "drug": "Metformin", "dose": "500 mg", "frequency": "twice daily"},
			},
			string(AISummaries): {
				{"id": uuid.NewString(), "encounter": encounter, "summary": "Type 2 diabetes, suboptimal control. Start metformin."},
			},
			string(ClinicalReferences): {
				{"id": uuid.NewString(), "title": "Standards of Care in Diabetes", "source": "ADA"},
			},
		},
	}
	d, err := NewDataset(cfg)
	if err != nil {
		panic(err)
	}
	return d
}

// Authenticate checks an email/password pair.
func (d *Dataset) Authenticate(email, password string) bool {
	hash, ok := d.users[email]
	if !ok {
		// keep timing similar for unknown accounts
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("gitdm"), bcrypt.MinCost)

func (d *Dataset) list(res Resource) []record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.resources[res][:len(d.resources[res]):len(d.resources[res])]
}

func (d *Dataset) get(res Resource, id string) (json.RawMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, rec := range d.resources[res] {
		if rec.id == id {
			return rec.body, true
		}
	}
	return nil, false
}

// create appends item to the collection of res. An item without an id gets a
// new uuid; an id that is already taken is rejected.
func (d *Dataset) create(res Resource, item map[string]any) (json.RawMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, _ := item["id"].(string)
	if id == "" {
		id = uuid.NewString()
		item["id"] = id
	}
	for _, rec := range d.resources[res] {
		if rec.id == id {
			return nil, fmt.Errorf("%w: %s %s", ErrDuplicateID, res, id)
		}
	}
	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encoding %s item: %w", res, err)
	}
	d.resources[res] = append(d.resources[res], record{id: id, body: body})
	return body, nil
}

var ErrDuplicateID = errors.New("id already exists")
