package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"insight/internal/domain"
)

func TestReadCSVDropsEmptyAndTrims(t *testing.T) {
	in := "rating,Text\n5,  great support  \n3,\n1,too expensive\n2,   \n"
	recs, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	want := []Record{{ID: "0", Text: "great support"}, {ID: "1", Text: "too expensive"}}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(recs), len(want), recs)
	}
	for i := range want {
		if recs[i] != want[i] {
			t.Fatalf("record %d = %+v, want %+v", i, recs[i], want[i])
		}
	}
}

func TestReadCSVUsesIDColumn(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader("id,text\nr-7,slow app\n,no id here\n"))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if recs[0].ID != "r-7" || recs[1].ID != "1" {
		t.Fatalf("ids = %q, %q", recs[0].ID, recs[1].ID)
	}
}

func TestReadCSVMissingTextColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("comment\nhello\n"))
	if !errors.Is(err, domain.ErrInput) {
		t.Fatalf("ReadCSV = %v, want ErrInput", err)
	}
}

func TestReadCSVEmptyFile(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("")); !errors.Is(err, domain.ErrInput) {
		t.Fatalf("ReadCSV(empty) = %v, want ErrInput", err)
	}
}

func TestReadCSVDuplicateID(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("id,text\na,x\na,y\n"))
	if !errors.Is(err, domain.ErrInput) {
		t.Fatalf("duplicate ids = %v, want ErrInput", err)
	}
}

func TestReadCSVQuotedMultiline(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader("text\n\"line one\nline two\"\n"))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(recs) != 1 || recs[0].Text != "line one\nline two" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.csv")
	if err := os.WriteFile(path, []byte("\ufefftext\nfast delivery\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	recs, err := LoadCSV(path)
	if err != nil || len(recs) != 1 {
		t.Fatalf("LoadCSV = %+v, %v", recs, err)
	}
	ids, texts := Split(recs)
	if ids[0] != "0" || texts[0] != "fast delivery" {
		t.Fatalf("Split = %v %v", ids, texts)
	}
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, domain.ErrInput) {
		t.Fatalf("LoadCSV(missing) = %v, want ErrInput", err)
	}
}
