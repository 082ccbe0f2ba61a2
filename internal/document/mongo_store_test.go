package document

import (
	"encoding/json"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestJSONBSONConversion_RoundTrip(t *testing.T) {
	cases := []string{
		`"Ana"`,
		`{"firstName":"Ana","email":"ana@x.com"}`,
		`["a1","a2"]`,
		`{"totalBookings":2,"openOrders":{"o1":{"id":"o1"}}}`,
		`true`,
	}

	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			v, err := jsonToBSONValue(json.RawMessage(in))
			if err != nil {
				t.Fatalf("jsonToBSONValue returned error: %v", err)
			}

			b, err := bson.Marshal(bson.D{{Key: "k", Value: v}})
			if err != nil {
				t.Fatalf("bson.Marshal returned error: %v", err)
			}

			out, err := bsonValueToJSON(bson.Raw(b).Lookup("k"))
			if err != nil {
				t.Fatalf("bsonValueToJSON returned error: %v", err)
			}

			var want, got interface{}
			json.Unmarshal([]byte(in), &want)
			if err := json.Unmarshal(out, &got); err != nil {
				t.Fatalf("output is not valid JSON: %s", out)
			}
			wantJSON, _ := json.Marshal(want)
			gotJSON, _ := json.Marshal(got)
			if string(wantJSON) != string(gotJSON) {
				t.Errorf("round trip = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestJSONToBSONValue_Invalid(t *testing.T) {
	if _, err := jsonToBSONValue(json.RawMessage(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
