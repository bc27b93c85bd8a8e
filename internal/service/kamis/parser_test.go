package kamis

import (
	"errors"
	"testing"

	"PricePull/internal/domain/models"

	"github.com/stretchr/testify/require"
)

const xmlBody = `<?xml version="1.0" encoding="utf-8"?>
<document>
  <condition><item><p_startday>2024-05-01</p_startday></item></condition>
  <data>
    <error_code>000</error_code>
    <item>
      <itemname>소/등심</itemname>
      <countyname>서울</countyname>
      <marketname>이마트</marketname>
      <yyyy>2024</yyyy>
      <regday>05/02</regday>
      <price>12,340</price>
    </item>
    <item>
      <countyname>평균</countyname>
      <yyyy>2024</yyyy>
      <regday>05/02</regday>
      <price>-</price>
      <dpr1>11,900</dpr1>
    </item>
  </data>
</document>`

func TestParseXML(t *testing.T) {
	obs, err := Parse([]byte(xmlBody))
	require.NoError(t, err)

	// The condition block carries an item of its own; it has no price and is kept
	// as a raw record for the normalizer to drop.
	var priced []models.RawObservation
	for _, o := range obs {
		if o.RawDate != "" {
			priced = append(priced, o)
		}
	}
	require.Len(t, priced, 2)
	require.Equal(t, "서울", priced[0].Region)
	require.Equal(t, "이마트", priced[0].Market)
	require.Equal(t, "05/02", priced[0].RawDate)
	require.Equal(t, "2024", priced[0].Year)
	require.Equal(t, "12,340", priced[0].Fields["price"])
	require.Equal(t, "11,900", priced[1].Fields["dpr1"])
}

func TestParseJSONFromFirstBrace(t *testing.T) {
	body := `callback({"data":{"error_code":"000","item":{"countyname":"부산","regday":"20240502","price":15000}}}) trailing`
	obs, err := Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.Equal(t, "부산", obs[0].Region)
	require.Equal(t, "20240502", obs[0].RawDate)
	require.Equal(t, "15000", obs[0].Fields["price"])
}

func TestParseJSONItemsArrayAnywhere(t *testing.T) {
	body := `{"result":{"nested":{"items":[{"countyname":"대구","lastest_day":"2024-05-03 00:00","dpr0":"9,800"},{"countyname":"평균","regday":"2024-05-03"}]}}}`
	obs, err := Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, obs, 2)
	require.Equal(t, "2024-05-03 00:00", obs[0].RawDate)
	require.Equal(t, "9,800", obs[0].Fields["dpr0"])
}

func TestParseHTMLGuard(t *testing.T) {
	for _, body := range []string{
		"<!DOCTYPE html><html><body>error</body></html>",
		"  <html><head></head></html>",
		"<?xml version=\"1.0\"?>\n<!-- redirect --><html lang=\"ko\"></html>",
	} {
		_, err := Parse([]byte(body))
		require.ErrorIs(t, err, models.ErrFeedFormat, body)
	}
}

func TestParseErrorCode(t *testing.T) {
	_, err := Parse([]byte(`{"data":{"error_code":"200","item":[]}}`))
	var le *models.FeedLogicError
	require.True(t, errors.As(err, &le))
	require.Equal(t, "200", le.Code)

	_, err = Parse([]byte(`{"condition":[],"data":["001"]}`))
	require.True(t, errors.As(err, &le))
	require.Equal(t, "001", le.Code)
}

func TestParseEmptyButWellFormed(t *testing.T) {
	obs, err := Parse([]byte(`<document><data><error_code>0</error_code></data></document>`))
	require.NoError(t, err)
	require.Empty(t, obs)
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse([]byte("   "))
	require.ErrorIs(t, err, models.ErrFeedFormat)

	_, err = Parse([]byte("service temporarily down"))
	require.ErrorIs(t, err, models.ErrFeedFormat)

	_, err = Parse([]byte("{not json"))
	require.ErrorIs(t, err, models.ErrFeedFormat)
}
