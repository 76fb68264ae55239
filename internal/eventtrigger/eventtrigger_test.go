package eventtrigger

import "testing"

func TestOutputKeyTrimsTrailingSlashAndBasename(t *testing.T) {
	got := OutputKey("textract_outputs/", "inbox/scans/invoice-001.pdf")
	want := "textract_outputs/invoice-001.pdf.json"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestOutputKeyNoTrailingSlash(t *testing.T) {
	got := OutputKey("out", "a/b/c.png")
	want := "out/c.png.json"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestHandleBatchSkipsMissingBucketOrKey(t *testing.T) {
	h := New(nil, nil, "out/", nil)
	res := h.HandleBatch(nil, []Record{{Bucket: "", Key: ""}, {Bucket: "b", Key: ""}}, "req-1")
	if res.Status != "ok" {
		t.Fatalf("expected ok status for all-skipped batch, got %+v", res)
	}
}
