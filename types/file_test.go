package types

import (
	"testing"
	"time"
)

func TestHumanSize(t *testing.T) {
	cases := map[int64]string{
		0:                  "0 B",
		512:                "512 B",
		1536:               "1.50 KB",
		2 * 1024 * 1024:    "2.00 MB",
		1024 * 1024 * 1024: "1.00 GB",
	}
	for size, want := range cases {
		if got := HumanSize(size); got != want {
			t.Fatalf("HumanSize(%d) = %q, want %q", size, got, want)
		}
	}
}

func TestFileRecordToFile(t *testing.T) {
	uploaded := time.Date(2024, 3, 5, 10, 20, 30, 0, time.Local)
	rec := FileRecord{
		ID:          9,
		UserID:      3,
		FileName:    "report.pdf",
		ObjectKey:   "user_files/3/abc_report.pdf",
		FileSize:    2048,
		ContentType: "application/pdf",
		Comment:     "q1",
		UploadDate:  uploaded,
		UpdatedAt:   uploaded,
	}

	f := rec.ToFile("http://localhost:8000/")
	if f.URL != "http://localhost:8000/media/user_files/3/abc_report.pdf" {
		t.Fatalf("unexpected url: %q", f.URL)
	}
	if f.FileName != "report.pdf" {
		t.Fatalf("unexpected name: %q", f.FileName)
	}
	if f.UploadDate != "05.03.2024 10:20:30" {
		t.Fatalf("unexpected upload date: %q", f.UploadDate)
	}
	if f.LastDownloaded != "" {
		t.Fatalf("expected empty last_downloaded, got %q", f.LastDownloaded)
	}
	if f.FileSize != "2.00 KB" {
		t.Fatalf("unexpected size: %q", f.FileSize)
	}
}

func TestUserUpdateApply(t *testing.T) {
	login := "newlogin"
	admin := true
	u := UserUpdate{Login: &login, IsAdmin: &admin}
	if u.Empty() {
		t.Fatalf("expected non-empty update")
	}
	got := u.Apply(User{ID: 1, Login: "old", Fullname: "Keep"})
	if got.Login != "newlogin" || !got.IsAdmin || got.Fullname != "Keep" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if !(UserUpdate{}).Empty() {
		t.Fatalf("expected empty update")
	}
}
