package tariff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleENTSOEDocument = `<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:0">
	<mRID>sample</mRID>
	<revisionNumber>1</revisionNumber>
	<type>A44</type>
	<sender_MarketParticipant.mRID codingScheme="A01">10X1001A1001A450</sender_MarketParticipant.mRID>
	<sender_MarketParticipant.marketRole.type>A32</sender_MarketParticipant.marketRole.type>
	<receiver_MarketParticipant.mRID codingScheme="A01">10X1001A1001A450</receiver_MarketParticipant.mRID>
	<receiver_MarketParticipant.marketRole.type>A33</receiver_MarketParticipant.marketRole.type>
	<createdDateTime>2026-07-29T12:00:00Z</createdDateTime>
	<period.timeInterval>
		<start>2026-07-29T22:00Z</start>
		<end>2026-07-30T22:00Z</end>
	</period.timeInterval>
	<TimeSeries>
		<mRID>1</mRID>
		<businessType>A62</businessType>
		<currency_Unit.name>EUR</currency_Unit.name>
		<price_Measure_Unit.name>MWH</price_Measure_Unit.name>
		<curveType>A01</curveType>
		<Period>
			<timeInterval>
				<start>2026-07-29T22:00Z</start>
				<end>2026-07-30T22:00Z</end>
			</timeInterval>
			<resolution>PT60M</resolution>
			<Point><position>1</position><price.amount>50.00</price.amount></Point>
			<Point><position>2</position><price.amount>45.50</price.amount></Point>
			<Point><position>3</position><price.amount>120.75</price.amount></Point>
		</Period>
	</TimeSeries>
</Publication_MarketDocument>`

func TestDecodeENTSOEPrices_ProjectsPointsOntoHourOffsets(t *testing.T) {
	dayStart := time.Date(2026, 7, 29, 22, 0, 0, 0, time.UTC)

	forecast, err := DecodeENTSOEPrices([]byte(sampleENTSOEDocument), dayStart)
	require.NoError(t, err)

	assert.InDelta(t, 50.00, forecast[0], 1e-9)
	assert.InDelta(t, 45.50, forecast[1], 1e-9)
	assert.InDelta(t, 120.75, forecast[2], 1e-9)
}

func TestDecodeENTSOEPrices_RejectsMalformedXML(t *testing.T) {
	_, err := DecodeENTSOEPrices([]byte("not xml"), time.Now())
	assert.Error(t, err)
}

func TestDecodeENTSOEPrices_RejectsDocumentWithNoPoints(t *testing.T) {
	empty := `<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:0">
	<mRID>empty</mRID>
	<revisionNumber>1</revisionNumber>
	<type>A44</type>
	<sender_MarketParticipant.mRID codingScheme="A01">x</sender_MarketParticipant.mRID>
	<sender_MarketParticipant.marketRole.type>A32</sender_MarketParticipant.marketRole.type>
	<receiver_MarketParticipant.mRID codingScheme="A01">x</receiver_MarketParticipant.mRID>
	<receiver_MarketParticipant.marketRole.type>A33</receiver_MarketParticipant.marketRole.type>
	<createdDateTime>2026-07-29T12:00:00Z</createdDateTime>
	<period.timeInterval>
		<start>2026-07-29T22:00Z</start>
		<end>2026-07-30T22:00Z</end>
	</period.timeInterval>
</Publication_MarketDocument>`

	_, err := DecodeENTSOEPrices([]byte(empty), time.Now())
	assert.Error(t, err)
}
