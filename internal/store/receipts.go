package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"payengine/internal/domain"
)

const receiptsFile = "receipts.enc"

// Receipt is one completed payment as kept in the local journal. It never
// holds instrument data beyond the last four digits.
type Receipt struct {
	ReceiptNumber string            `json:"receipt_number"`
	Kind          string            `json:"kind"`
	Token         string            `json:"token"`
	LastFour      string            `json:"last_four,omitempty"`
	Brand         string            `json:"brand,omitempty"`
	Amount        int64             `json:"amount"`
	ServiceFee    int64             `json:"service_fee"`
	State         string            `json:"state,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	RecordedAt    time.Time         `json:"recorded_at"`
}

// ReceiptFromOutcome flattens a successful outcome. ok is false for
// outcomes that carry no receipt.
func ReceiptFromOutcome(out domain.Outcome, at time.Time) (Receipt, bool) {
	r := Receipt{Kind: string(out.Kind), RecordedAt: at.UTC()}
	switch {
	case out.Transfer != nil:
		t := out.Transfer
		r.ReceiptNumber, r.Token = t.ReceiptNumber, t.TransferToken
		r.LastFour, r.Brand, r.State, r.Tags = t.LastFour, t.Brand, t.State, t.Tags
		r.Amount, r.ServiceFee = t.Amount, t.ServiceFee
	case out.Token != nil:
		t := out.Token
		r.ReceiptNumber, r.Token = t.ReceiptNumber, t.PaymentToken
		r.LastFour, r.Brand = t.LastFour, t.Brand
		r.Amount, r.ServiceFee = t.Amount, t.ServiceFee
	case out.Barcode != nil:
		r.ReceiptNumber, r.Token, r.Amount = out.Barcode.BarcodeID, out.Barcode.BarcodeURL, out.Barcode.Amount
	default:
		return Receipt{}, false
	}
	return r, true
}

// Receipts is a passphrase-sealed journal of receipts under a directory.
// Methods are safe for concurrent use within one process.
type Receipts struct {
	dir        string
	passphrase string
	kdf        kdfParams
	mu         sync.Mutex
}

func NewReceipts(dir, passphrase string) *Receipts {
	return &Receipts{dir: dir, passphrase: passphrase, kdf: defaultKDF}
}

// Append adds r to the journal, creating it if needed.
func (s *Receipts) Append(r Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	all = append(all, r)
	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshal receipts: %w", err)
	}
	b, err := seal(s.passphrase, raw, s.kdf)
	if err != nil {
		return fmt.Errorf("seal receipts: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return writeFile(s.path(), b, 0o600)
}

// List returns every receipt in the order appended. A missing journal is
// empty.
func (s *Receipts) List() ([]Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Receipts) load() ([]Receipt, error) {
	b, err := readFile(s.path())
	if err != nil || b == nil {
		return nil, err
	}
	raw, err := unseal(s.passphrase, b)
	if err != nil {
		return nil, err
	}
	var out []Receipt
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode receipts: %w", err)
	}
	return out, nil
}

func (s *Receipts) path() string { return filepath.Join(s.dir, receiptsFile) }
