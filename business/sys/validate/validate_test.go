package validate_test

import (
	"testing"

	"github.com/quorumchain/node/business/sys/validate"
	"github.com/quorumchain/node/foundation/blockchain/database"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Check(t *testing.T) {
	t.Log("Given the need to validate a submitted transaction.")
	{
		good := database.Tx{
			Outputs: []database.Output{{User: "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32", Product: "apple"}},
		}
		if err := validate.Check(good); err != nil {
			t.Fatalf("\t%s\tShould accept a complete transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept a complete transaction.", success)

		bad := database.Tx{
			Inputs:  []database.Input{{}},
			Outputs: []database.Output{{User: "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"}},
		}
		err := validate.Check(bad)
		if !validate.IsFieldErrors(err) {
			t.Fatalf("\t%s\tShould reject an incomplete transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject an incomplete transaction.", success)

		fields := validate.GetFieldErrors(err).Fields()
		if _, exists := fields["product"]; !exists {
			t.Fatalf("\t%s\tShould name the json field that failed, got %v.", failed, fields)
		}
		if _, exists := fields["unclaimed_hash"]; !exists {
			t.Fatalf("\t%s\tShould name the json field that failed, got %v.", failed, fields)
		}
		t.Logf("\t%s\tShould name the json fields that failed.", success)

		if err := validate.Check(database.Tx{}); err == nil {
			t.Fatalf("\t%s\tShould reject a transaction with no outputs.", failed)
		}
		t.Logf("\t%s\tShould reject a transaction with no outputs.", success)
	}
}
