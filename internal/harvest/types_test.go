package harvest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-harvester/internal/hash/sha256"
)

func TestRecordAccessors(t *testing.T) {
	t.Parallel()

	rec := Record{
		FieldTitle:    "Sample Book",
		FieldCategory: "Fiction",
		FieldPrice:    "£19.99",
		"product_information": map[string]string{
			"UPC": "12345",
		},
	}
	require.Equal(t, "Sample Book", rec.DisplayName())
	require.Equal(t, Category("Fiction"), rec.Category())
	require.Equal(t, "£19.99", rec.Price())
	require.Empty(t, rec.String("product_information"))

	var nilRec Record
	require.Empty(t, nilRec.String(FieldName))
	require.Nil(t, nilRec.Clone())
}

func TestRecordCloneIsIndependent(t *testing.T) {
	t.Parallel()

	rec := Record{
		FieldName: "a",
		"info":    map[string]string{"k": "v"},
	}
	clone := rec.Clone()
	clone[FieldName] = "b"
	clone["info"].(map[string]string)["k"] = "changed"

	require.Equal(t, "a", rec.String(FieldName))
	require.Equal(t, "v", rec["info"].(map[string]string)["k"])
}

func TestRecordFingerprintIsStable(t *testing.T) {
	t.Parallel()

	a := Record{FieldName: "x", FieldCategory: "DevOps", FieldPriceRange: "$1"}
	b := Record{FieldPriceRange: "$1", FieldCategory: "DevOps", FieldName: "x"}
	c := Record{FieldName: "y", FieldCategory: "DevOps", FieldPriceRange: "$1"}

	fa, err := a.Fingerprint(sha256.New())
	require.NoError(t, err)
	fb, err := b.Fingerprint(sha256.New())
	require.NoError(t, err)
	fc, err := c.Fingerprint(sha256.New())
	require.NoError(t, err)

	require.Equal(t, fa, fb)
	require.NotEqual(t, fa, fc)
}

func TestCategories(t *testing.T) {
	t.Parallel()

	require.Equal(t, []Category{"A", "B"}, Categories("A", "B"))
	require.Empty(t, Categories())
}
