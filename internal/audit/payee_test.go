package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fs/recon-cli/internal/recordstore"
	"github.com/meridian-fs/recon-cli/internal/schema"
)

func payeeRow(num, payee, cid string) map[string]string {
	return map[string]string{
		schema.FieldCheckNumber: num,
		schema.FieldPayee:       payee,
		schema.FieldCID:         cid,
	}
}

func master(cid, name string) map[string]string {
	return map[string]string{schema.FieldCID: cid, schema.FieldName: name}
}

func TestPayeeVerificationCaseAndWhitespaceInsensitive(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	addTable(m, schema.TableVendor, master("V1", "Acme Supply Co"))
	addTable(m, schema.TableInvestor, master("I1", "Jordan Blake"))
	addTable(m, schema.TableChecks,
		payeeRow("1001", "ACME   supply co", "V1"),
		payeeRow("1002", "jordan blake", "I1"),
	)

	res, err := PayeeCIDVerification(context.Background(), m, testDir, "acme", Thresholds{})
	require.NoError(t, err)

	assert.Zero(t, res.MismatchCount)
	assert.Equal(t, SeverityLow, res.Severity)
	assert.Equal(t, 2, res.TotalChecks)
}

func TestPayeeVerificationNameMismatch(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	addTable(m, schema.TableVendor,
		master("V1", "Acme Supply Co"),
		master("V2", "Harbor Freightworks"),
	)
	addTable(m, schema.TableInvestor)
	addTable(m, schema.TableChecks,
		// CID resolves to V1 but the payee text is V2's name.
		payeeRow("1001", "Harbor Freightworks", "V1"),
	)

	res, err := PayeeCIDVerification(context.Background(), m, testDir, "acme", Thresholds{})
	require.NoError(t, err)

	require.Len(t, res.Mismatches, 1)
	mm := res.Mismatches[0]
	assert.Equal(t, PayeeNameMismatch, mm.Reason)
	assert.Equal(t, "Acme Supply Co", mm.NameOnFile)
	assert.Equal(t, []string{schema.TableVendor}, mm.FoundIn)
	assert.Equal(t, []string{"V2"}, mm.ExpectedCIDs)
}

func TestPayeeVerificationUnknownCID(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	addTable(m, schema.TableVendor, master("V1", "Acme Supply Co"))
	addTable(m, schema.TableInvestor)
	addTable(m, schema.TableChecks,
		payeeRow("1001", "Nobody Anyone Knows", "ZZ"),
	)

	res, err := PayeeCIDVerification(context.Background(), m, testDir, "acme", Thresholds{})
	require.NoError(t, err)

	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, PayeeUnknownCID, res.Mismatches[0].Reason)
	assert.Empty(t, res.Mismatches[0].FoundIn)
	assert.Empty(t, res.Mismatches[0].ExpectedCIDs)
}

func TestPayeeVerificationCIDInBothMasters(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	addTable(m, schema.TableVendor, master("X1", "Dual Role Partner"))
	addTable(m, schema.TableInvestor, master("X1", "Dual Role Partner"))
	addTable(m, schema.TableChecks,
		payeeRow("1001", "Someone Else", "X1"),
	)

	res, err := PayeeCIDVerification(context.Background(), m, testDir, "acme", Thresholds{})
	require.NoError(t, err)

	require.Len(t, res.Mismatches, 1)
	assert.ElementsMatch(t, []string{schema.TableVendor, schema.TableInvestor}, res.Mismatches[0].FoundIn)
}

func TestPayeeVerificationRequiresMasters(t *testing.T) {
	t.Parallel()

	m := recordstore.NewMemory()
	addTable(m, schema.TableChecks)
	_, err := PayeeCIDVerification(context.Background(), m, testDir, "acme", Thresholds{})
	assert.ErrorIs(t, err, recordstore.ErrTableNotFound)
}
