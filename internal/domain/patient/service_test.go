package patient

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

type mockRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	copied := *p
	m.patients[p.ID] = &copied
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return ErrNotFound
	}
	copied := *p
	m.patients[p.ID] = &copied
	return nil
}

func (m *mockRepo) List(_ context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		if search == "" || strings.Contains(strings.ToLower(p.FullName), strings.ToLower(search)) {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

func TestCreate_RequiresName(t *testing.T) {
	svc := NewService(newMockRepo())

	if err := svc.Create(context.Background(), &Patient{}); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	svc := NewService(newMockRepo())
	insurance := "INS-100200"
	p := &Patient{FullName: "Awa Diallo", InsuranceNumber: &insurance}

	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FullName != "Awa Diallo" {
		t.Errorf("expected Awa Diallo, got %q", got.FullName)
	}
	if got.InsuranceNumber == nil || *got.InsuranceNumber != insurance {
		t.Errorf("expected insurance number %s, got %v", insurance, got.InsuranceNumber)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := NewService(newMockRepo())

	if _, err := svc.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_UnknownPatient(t *testing.T) {
	svc := NewService(newMockRepo())

	err := svc.Update(context.Background(), &Patient{ID: uuid.New(), FullName: "Awa Diallo"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList_Search(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	for _, name := range []string{"Awa Diallo", "Moussa Traoré", "Awa Koné"} {
		if err := svc.Create(context.Background(), &Patient{FullName: name}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	_, total, err := svc.List(context.Background(), "awa", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 matches, got %d", total)
	}
}
