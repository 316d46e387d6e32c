package mongo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"board/internal/core"
)

// jobDocument is the stored shape of a jobdetails record. Field names match
// the documents written by the first version of the board, which stored
// numbers and dates however the browser form sent them.
type jobDocument struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	JobNumber      string             `bson:"JobNumber"`
	Client         string             `bson:"Client"`
	Facility       string             `bson:"Facility"`
	JobValue       flexNumber         `bson:"JobValue"`
	Pieces         flexNumber         `bson:"Pieces"`
	RequiredByDate flexDate           `bson:"RequiredByDate,omitempty"`
	Color          string             `bson:"Color"`
	TestFit        string             `bson:"TestFit"`
	Rush           string             `bson:"Rush"`
	Schedule       []string           `bson:"Schedule"`
}

// flexNumber decodes doubles, integers, numeric strings and null.
type flexNumber float64

func (n *flexNumber) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Double:
		*n = flexNumber(rv.Double())
	case bsontype.Int32:
		*n = flexNumber(rv.Int32())
	case bsontype.Int64:
		*n = flexNumber(rv.Int64())
	case bsontype.String:
		s := strings.TrimSpace(rv.StringValue())
		if s == "" {
			*n = 0
			return nil
		}
		v, err := core.ParseAmount(s)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return fmt.Errorf("decode number %q: %w", s, err)
			}
			v = f
		}
		*n = flexNumber(v)
	case bsontype.Null, bsontype.Undefined:
		*n = 0
	default:
		return fmt.Errorf("decode number: unexpected bson type %s", t)
	}
	return nil
}

// flexDate holds a canonical YYYY-MM-DD day decoded from a string or a BSON
// datetime.
type flexDate string

func (d *flexDate) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.String:
		s := strings.TrimSpace(rv.StringValue())
		if s == "" {
			*d = ""
			return nil
		}
		parsed, err := core.ParseDate(s)
		if err != nil {
			// unreadable legacy values are dropped rather than failing the read
			*d = ""
			return nil
		}
		*d = flexDate(parsed.String())
	case bsontype.DateTime:
		*d = flexDate(core.DateOf(time.UnixMilli(rv.DateTime()).UTC()).String())
	case bsontype.Null, bsontype.Undefined:
		*d = ""
	default:
		return fmt.Errorf("decode date: unexpected bson type %s", t)
	}
	return nil
}

func toDocument(j core.Job) jobDocument {
	return jobDocument{
		JobNumber:      j.JobNumber,
		Client:         j.Client,
		Facility:       string(j.Facility),
		JobValue:       flexNumber(j.JobValue),
		Pieces:         flexNumber(j.Pieces),
		RequiredByDate: flexDate(j.RequiredByDate.String()),
		Color:          j.Color,
		TestFit:        string(j.TestFit),
		Rush:           string(j.Rush),
		Schedule:       append([]string{}, j.Schedule...),
	}
}

func fromDocument(d jobDocument) core.Job {
	j := core.Job{
		ID:        d.ID.Hex(),
		JobNumber: d.JobNumber,
		Client:    d.Client,
		Facility:  core.ParseFacility(d.Facility),
		JobValue:  float64(d.JobValue),
		Pieces:    int(d.Pieces),
		Color:     d.Color,
		TestFit:   core.Flag(strings.ToLower(d.TestFit)),
		Rush:      core.Flag(strings.ToLower(d.Rush)),
		Schedule:  append([]string{}, d.Schedule...),
	}
	if d.RequiredByDate != "" {
		if parsed, err := core.ParseDate(string(d.RequiredByDate)); err == nil {
			j.RequiredByDate = parsed
		}
	}
	return j
}

// patchUpdate builds the $set document for the fields a patch carries.
func patchUpdate(p core.JobPatch) bson.M {
	patched := p.Apply(core.Job{})
	doc := toDocument(patched)
	set := bson.M{}
	if p.JobNumber != nil {
		set["JobNumber"] = doc.JobNumber
	}
	if p.Client != nil {
		set["Client"] = doc.Client
	}
	if p.Facility != nil {
		set["Facility"] = doc.Facility
	}
	if p.JobValue != nil {
		set["JobValue"] = float64(doc.JobValue)
	}
	if p.Pieces != nil {
		set["Pieces"] = int(doc.Pieces)
	}
	if p.RequiredByDate != nil {
		set["RequiredByDate"] = string(doc.RequiredByDate)
	}
	if p.Color != nil {
		set["Color"] = doc.Color
	}
	if p.TestFit != nil {
		set["TestFit"] = doc.TestFit
	}
	if p.Rush != nil {
		set["Rush"] = doc.Rush
	}
	if p.Schedule != nil {
		set["Schedule"] = doc.Schedule
	}
	return bson.M{"$set": set}
}
