package testutil

import (
	"fmt"
	"strings"
)

// CSVHeader is the Kaggle Bitcoin history header row.
const CSVHeader = "Timestamp,Open,High,Low,Close,Volume_(BTC),Volume_(Currency),Weighted_Price\n"

// TwoRecordsCSV decodes to two records; its middle row is prefiltered.
const TwoRecordsCSV = CSVHeader +
	"1325317920,4.39,4.39,4.39,4.39,0.45558087,2.0000000193,4.39\n" +
	"1325317980,NaN,NaN,NaN,NaN,NaN,NaN,NaN\n" +
	"1325318040,4.58,4.58,4.58,4.58,1.502,6.87916,4.58\n"

// BadRecordCSV fails to decode on its second data row.
const BadRecordCSV = CSVHeader +
	"1325317920,4.39,4.39,4.39,4.39,0.45558087,2.0000000193,4.39\n" +
	"1325318040,not-a-number,4.39,4.39,4.39,0.455581,2,4.39\n"

// Row formats one data row with every price column set to price.
func Row(timestamp int64, price, btcVolume float64) string {
	return fmt.Sprintf("%d,%g,%g,%g,%g,%g,%g,%g\n",
		timestamp, price, price, price, price, btcVolume, btcVolume*price, price)
}

// Batch builds a CSV batch of n one-minute rows starting at start.
func Batch(start int64, n int) string {
	var b strings.Builder
	b.WriteString(CSVHeader)
	for i := 0; i < n; i++ {
		b.WriteString(Row(start+int64(i)*60, 4.39+float64(i)/100, 0.5))
	}
	return b.String()
}
