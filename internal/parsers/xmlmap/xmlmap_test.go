package xmlmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const priceFeedSample = `<?xml version="1.0" encoding="utf-8"?>
<Root>
	<ChainId>7290027600007</ChainId>
	<StoreId>001</StoreId>
	<Items>
		<Item>
			<ItemCode>7290000000001</ItemCode>
			<ItemName>חלב טרי 3% 1 ליטר</ItemName>
			<ItemPrice>5.90</ItemPrice>
		</Item>
		<Item>
			<ItemCode>7290000000002</ItemCode>
			<ItemName>לחם אחיד פרוס</ItemName>
			<ItemPrice>7.50</ItemPrice>
		</Item>
	</Items>
</Root>`

func TestParseBuildsNodeTree(t *testing.T) {
	doc, err := Parse([]byte(priceFeedSample))
	require.NoError(t, err)

	root, ok := doc["Root"].(Node)
	require.True(t, ok, "document should contain the Root element")
	assert.Equal(t, "001", ChildString(root, "StoreId"))
}

func TestParseStripsUTF8BOM(t *testing.T) {
	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte(priceFeedSample)...)
	doc, err := Parse(withBOM)
	require.NoError(t, err)
	assert.NotEmpty(t, FindAll(doc, "Item"))
}

func TestFindAllFallbackOrder(t *testing.T) {
	tests := []struct {
		name       string
		xml        string
		candidates []string
		expected   int
	}{
		{
			name:       "primary container matches",
			xml:        `<r><Products><Product><a>1</a></Product><Product><a>2</a></Product></Products></r>`,
			candidates: []string{"Product", "Item", "PRODUCT"},
			expected:   2,
		},
		{
			name:       "falls back to second candidate",
			xml:        priceFeedSample,
			candidates: []string{"Product", "Item", "PRODUCT"},
			expected:   2,
		},
		{
			name:       "falls back to uppercase container",
			xml:        `<r><PRODUCTS><PRODUCT><a>1</a></PRODUCT></PRODUCTS></r>`,
			candidates: []string{"Product", "Item", "PRODUCT"},
			expected:   1,
		},
		{
			name:       "single element still returned",
			xml:        `<r><Items><Item><a>1</a></Item></Items></r>`,
			candidates: []string{"Product", "Item"},
			expected:   1,
		},
		{
			name:       "nothing matches",
			xml:        `<r><Stuff><Thing/></Stuff></r>`,
			candidates: []string{"Product", "Item"},
			expected:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.xml))
			require.NoError(t, err)
			assert.Len(t, FindAll(doc, tt.candidates...), tt.expected)
		})
	}
}

func TestPathNavigation(t *testing.T) {
	xml := `<Store>
		<Branches>
			<Branch><StoreID>091</StoreID><City>תל אביב</City></Branch>
			<Branch><StoreID>092</StoreID><City>חיפה</City></Branch>
		</Branches>
	</Store>`

	doc, err := Parse([]byte(xml))
	require.NoError(t, err)

	branches := Path(doc, "Store.Branches.Branch")
	require.Len(t, branches, 2)
	assert.Equal(t, "091", ChildString(branches[0], "StoreID"))
	assert.Equal(t, "תל אביב", ChildString(branches[0], "City"))

	// Path segments tolerate case differences.
	assert.Len(t, Path(doc, "store.branches.branch"), 2)

	// Wrong path returns nothing.
	assert.Nil(t, Path(doc, "Store.Stores.Branch"))
}

func TestChildStringCandidateOrder(t *testing.T) {
	doc, err := Parse([]byte(`<r><ITEMCODE>123</ITEMCODE><Price>4.20</Price></r>`))
	require.NoError(t, err)
	root := doc["r"].(Node)

	assert.Equal(t, "123", ChildString(root, "ItemCode", "Barcode", "ITEMCODE"))
	assert.Equal(t, "4.20", ChildString(root, "ItemPrice", "Price", "ITEMPRICE"))
	assert.Equal(t, "", ChildString(root, "ItemName", "ProductName", "ITEMNAME"))
}

func TestFindStringLocatesRootField(t *testing.T) {
	tests := []struct {
		name     string
		xml      string
		expected string
	}{
		{"mixed case", `<Prices><StoreId>005</StoreId></Prices>`, "005"},
		{"pascal case", `<Prices><StoreID>005</StoreID></Prices>`, "005"},
		{"upper case", `<PRICES><STOREID>005</STOREID></PRICES>`, "005"},
		{"nested under envelope", `<Root><Envelope><StoreId>077</StoreId></Envelope></Root>`, "077"},
		{"absent", `<Prices><Other>x</Other></Prices>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.xml))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, FindString(doc, "StoreId", "StoreID", "STOREID"))
		})
	}
}

func TestParseAgorot(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
		wantErr  bool
	}{
		{"plain decimal", "5.90", 590, false},
		{"integer", "12", 1200, false},
		{"with shekel sign", "₪7.50", 750, false},
		{"with currency suffix", "7.50 NIS", 750, false},
		{"thousands separator", "1,234.56", 123456, false},
		{"legacy comma decimal", "5,90", 590, false},
		{"whitespace", "  3.10  ", 310, false},
		{"zero", "0", 0, false},
		{"negative", "-2.50", -250, false},
		{"non-numeric", "N/A", 0, true},
		{"empty", "", 0, true},
		{"spaces only", "   ", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAgorot(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestHebrewPreservedVerbatim(t *testing.T) {
	doc, err := Parse([]byte(priceFeedSample))
	require.NoError(t, err)

	items := FindAll(doc, "Item")
	require.Len(t, items, 2)
	assert.Equal(t, "חלב טרי 3% 1 ליטר", ChildString(items[0], "ItemName"))
	assert.Equal(t, "לחם אחיד פרוס", ChildString(items[1], "ItemName"))
}

func TestRepeatedElementsBecomeSlices(t *testing.T) {
	doc, err := Parse([]byte(`<r><x><v>1</v></x><x><v>2</v></x><x><v>3</v></x></r>`))
	require.NoError(t, err)

	root := doc["r"].(Node)
	xs, ok := root["x"].([]any)
	require.True(t, ok, "repeated children should collapse into a slice")
	assert.Len(t, xs, 3)
}

func TestAttributesCarryPrefix(t *testing.T) {
	doc, err := Parse([]byte(`<r><item Count="7">text</item></r>`))
	require.NoError(t, err)

	root := doc["r"].(Node)
	item := root["item"].(Node)
	assert.Equal(t, "7", item["@_Count"])
	assert.Equal(t, "text", item["#text"])
}
