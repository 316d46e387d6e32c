package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"board/internal/core"
)

func decode(t *testing.T, in bson.M) core.Job {
	t.Helper()
	raw, err := bson.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc jobDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return fromDocument(doc)
}

func TestDecodeLegacyDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	j := decode(t, bson.M{
		"_id":            oid,
		"JobNumber":      "J-7",
		"Client":         "Acme",
		"Facility":       "aluminum",
		"JobValue":       "1,500",
		"Pieces":         int32(3),
		"RequiredByDate": "2024-07-04",
		"TestFit":        "Yes",
		"Rush":           "no",
		"Schedule":       bson.A{"2024-07-01", "2024-07-02 (Test Fit)"},
	})
	if j.ID != oid.Hex() || j.Facility != core.Aluminum || j.JobValue != 1500 || j.Pieces != 3 {
		t.Fatalf("unexpected job: %+v", j)
	}
	if j.RequiredByDate.String() != "2024-07-04" || !j.TestFit.Yes() || len(j.Schedule) != 2 {
		t.Fatalf("unexpected job: %+v", j)
	}
}

func TestDecodeDateTimeAndNulls(t *testing.T) {
	j := decode(t, bson.M{
		"JobNumber":      "J-8",
		"JobValue":       nil,
		"RequiredByDate": primitive.NewDateTimeFromTime(time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC)),
	})
	if j.JobValue != 0 || !j.IsService() {
		t.Fatalf("null value should be a service job: %+v", j)
	}
	if j.RequiredByDate.String() != "2024-07-04" {
		t.Fatalf("RequiredByDate = %q", j.RequiredByDate)
	}
	if j.Schedule == nil {
		t.Fatalf("missing schedule should decode as empty")
	}
}

func TestToDocumentRoundTrip(t *testing.T) {
	in := core.Job{
		JobNumber:      "J-9",
		Facility:       core.Vinyl,
		JobValue:       42.5,
		Pieces:         2,
		RequiredByDate: core.NewDate(2024, 1, 31),
		TestFit:        core.FlagNo,
		Rush:           core.FlagYes,
		Schedule:       []string{"2024-01-29"},
	}
	raw, err := bson.Marshal(toDocument(in))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc jobDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out := fromDocument(doc)
	if out.JobNumber != in.JobNumber || out.JobValue != in.JobValue || out.Pieces != in.Pieces ||
		out.RequiredByDate.String() != "2024-01-31" || !out.Rush.Yes() || out.Schedule[0] != "2024-01-29" {
		t.Fatalf("round trip: %+v", out)
	}
	if _, ok := bson.Raw(raw).Lookup("_id").ObjectIDOK(); ok {
		t.Fatalf("zero id must be omitted so the server assigns one")
	}
}

func TestPatchUpdateOnlySetsGivenFields(t *testing.T) {
	color := "Red"
	sched := []string{"Mon Jul 01 2024"}
	upd := patchUpdate(core.JobPatch{Color: &color, Schedule: &sched})
	set, ok := upd["$set"].(bson.M)
	if !ok {
		t.Fatalf("missing $set: %v", upd)
	}
	if len(set) != 2 || set["Color"] != "Red" {
		t.Fatalf("unexpected $set: %v", set)
	}
	if got := set["Schedule"].([]string); len(got) != 1 || got[0] != "2024-07-01" {
		t.Fatalf("schedule not canonical: %v", got)
	}
}
