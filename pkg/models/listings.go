package models

// Market identifies the exchange a listing trades on.
type Market string

const (
	MarketKOSPI  Market = "KOSPI"
	MarketKOSDAQ Market = "KOSDAQ"
)

// Listing is a tracked security: a stable numeric symbol and a display name.
type Listing struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Market Market `json:"market"`
}

// KOSPIMajors are the tracked large-cap KOSPI listings.
var KOSPIMajors = []Listing{
	{Symbol: "005930", Name: "삼성전자", Market: MarketKOSPI},
	{Symbol: "000660", Name: "SK하이닉스", Market: MarketKOSPI},
	{Symbol: "051910", Name: "LG화학", Market: MarketKOSPI},
	{Symbol: "207940", Name: "삼성바이오로직스", Market: MarketKOSPI},
	{Symbol: "035420", Name: "NAVER", Market: MarketKOSPI},
	{Symbol: "035720", Name: "카카오", Market: MarketKOSPI},
	{Symbol: "006400", Name: "삼성SDI", Market: MarketKOSPI},
	{Symbol: "005380", Name: "현대차", Market: MarketKOSPI},
	{Symbol: "000270", Name: "기아", Market: MarketKOSPI},
	{Symbol: "068270", Name: "셀트리온", Market: MarketKOSPI},
}

// KOSDAQMajors are the tracked KOSDAQ listings.
var KOSDAQMajors = []Listing{
	{Symbol: "086520", Name: "에코프로", Market: MarketKOSDAQ},
	{Symbol: "247540", Name: "에코프로비엠", Market: MarketKOSDAQ},
	{Symbol: "263750", Name: "펄어비스", Market: MarketKOSDAQ},
	{Symbol: "225570", Name: "위메프", Market: MarketKOSDAQ},
	{Symbol: "028300", Name: "HLB", Market: MarketKOSDAQ},
	{Symbol: "196170", Name: "알테오젠", Market: MarketKOSDAQ},
	{Symbol: "253450", Name: "스튜디오드래곤", Market: MarketKOSDAQ},
	{Symbol: "078340", Name: "컴투스", Market: MarketKOSDAQ},
	{Symbol: "213420", Name: "티앤엘", Market: MarketKOSDAQ},
	{Symbol: "064550", Name: "바이오니아", Market: MarketKOSDAQ},
}

// AllMajors returns every tracked listing, KOSPI first.
func AllMajors() []Listing {
	all := make([]Listing, 0, len(KOSPIMajors)+len(KOSDAQMajors))
	all = append(all, KOSPIMajors...)
	all = append(all, KOSDAQMajors...)
	return all
}
