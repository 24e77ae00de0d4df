package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"task-runtime-service/internal/task-runtime/db"
	"task-runtime-service/internal/task-runtime/taskerr"
)

// DocumentStore is the tenant-isolated generic store behind every execution
// context's data handle. Documents are schemaless JSON objects keyed by an
// opaque generated id within a named collection.
type DocumentStore struct {
	DB *gorm.DB
}

func NewDocumentStore(gormDB *gorm.DB) *DocumentStore {
	return &DocumentStore{DB: gormDB}
}

// DocumentSnapshot pairs a document id with its decoded data.
type DocumentSnapshot struct {
	ID   string                 `json:"id"`
	Data map[string]interface{} `json:"data"`
}

// QueryFilter is a single field comparison applied by Query.
type QueryFilter struct {
	Field string
	Op    string // ==, !=, >, >=, <, <=
	Value interface{}
}

func (s *DocumentStore) Get(tenant, collection, docID string) (*DocumentSnapshot, error) {
	var doc db.Document
	err := s.DB.Where("tenant_id = ? AND collection = ? AND doc_id = ?", tenant, collection, docID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, taskerr.NotFound("document %s/%s not found", collection, docID)
	}
	if err != nil {
		return nil, err
	}
	return snapshot(&doc)
}

func (s *DocumentStore) List(tenant, collection string) ([]DocumentSnapshot, error) {
	var docs []db.Document
	err := s.DB.Where("tenant_id = ? AND collection = ?", tenant, collection).
		Order("doc_id").Find(&docs).Error
	if err != nil {
		return nil, err
	}
	out := make([]DocumentSnapshot, 0, len(docs))
	for i := range docs {
		snap, err := snapshot(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, nil
}

// Add stores data under a freshly generated id and returns it.
func (s *DocumentStore) Add(tenant, collection string, data map[string]interface{}) (string, error) {
	docID := uuid.NewString()
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	doc := db.Document{TenantID: tenant, Collection: collection, DocID: docID, Data: string(raw)}
	if err := s.DB.Create(&doc).Error; err != nil {
		return "", err
	}
	return docID, nil
}

// Set creates or fully replaces the document at docID.
func (s *DocumentStore) Set(tenant, collection, docID string, data map[string]interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var doc db.Document
	err = s.DB.Where("tenant_id = ? AND collection = ? AND doc_id = ?", tenant, collection, docID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		doc = db.Document{TenantID: tenant, Collection: collection, DocID: docID, Data: string(raw)}
		return s.DB.Create(&doc).Error
	}
	if err != nil {
		return err
	}
	return s.DB.Model(&doc).Update("data", string(raw)).Error
}

// Update merges partial into the existing document; missing documents fail.
func (s *DocumentStore) Update(tenant, collection, docID string, partial map[string]interface{}) error {
	var doc db.Document
	err := s.DB.Where("tenant_id = ? AND collection = ? AND doc_id = ?", tenant, collection, docID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return taskerr.NotFound("document %s/%s not found", collection, docID)
	}
	if err != nil {
		return err
	}
	current := map[string]interface{}{}
	if doc.Data != "" {
		if err := json.Unmarshal([]byte(doc.Data), &current); err != nil {
			return fmt.Errorf("corrupt document %s/%s: %w", collection, docID, err)
		}
	}
	for k, v := range partial {
		current[k] = v
	}
	raw, err := json.Marshal(current)
	if err != nil {
		return err
	}
	return s.DB.Model(&doc).Update("data", string(raw)).Error
}

func (s *DocumentStore) Delete(tenant, collection, docID string) error {
	res := s.DB.Where("tenant_id = ? AND collection = ? AND doc_id = ?", tenant, collection, docID).
		Delete(&db.Document{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return taskerr.NotFound("document %s/%s not found", collection, docID)
	}
	return nil
}

// Query returns the documents of a collection matching every filter. Filters
// compare one top-level field each; comparisons follow JSON semantics
// (numbers compare numerically, everything else by string form).
func (s *DocumentStore) Query(tenant, collection string, filters []QueryFilter) ([]DocumentSnapshot, error) {
	all, err := s.List(tenant, collection)
	if err != nil {
		return nil, err
	}
	out := make([]DocumentSnapshot, 0, len(all))
	for _, snap := range all {
		ok := true
		for _, f := range filters {
			match, err := matchFilter(snap.Data[f.Field], f)
			if err != nil {
				return nil, err
			}
			if !match {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

func matchFilter(fieldValue interface{}, f QueryFilter) (bool, error) {
	cmp, comparable := compareValues(fieldValue, f.Value)
	switch strings.TrimSpace(f.Op) {
	case "==", "":
		return comparable && cmp == 0, nil
	case "!=":
		return !comparable || cmp != 0, nil
	case ">":
		return comparable && cmp > 0, nil
	case ">=":
		return comparable && cmp >= 0, nil
	case "<":
		return comparable && cmp < 0, nil
	case "<=":
		return comparable && cmp <= 0, nil
	default:
		return false, taskerr.BadRequest("unsupported query operator %q", f.Op)
	}
}

func compareValues(a, b interface{}) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		return 0, false
	}
	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	return strings.Compare(as, bs), true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func snapshot(doc *db.Document) (*DocumentSnapshot, error) {
	data := map[string]interface{}{}
	if doc.Data != "" {
		if err := json.Unmarshal([]byte(doc.Data), &data); err != nil {
			return nil, fmt.Errorf("corrupt document %s/%s: %w", doc.Collection, doc.DocID, err)
		}
	}
	return &DocumentSnapshot{ID: doc.DocID, Data: data}, nil
}
