package shipping

// defaultAliases maps well-known city and ward names to the prefecture
// used as the rate table key. The table is baked in at build time; it is
// not user-editable.
var defaultAliases = map[string]string{
	// 政令指定都市
	"札幌市":   "北海道",
	"仙台市":   "宮城県",
	"さいたま市": "埼玉県",
	"千葉市":   "千葉県",
	"横浜市":   "神奈川県",
	"川崎市":   "神奈川県",
	"相模原市":  "神奈川県",
	"新潟市":   "新潟県",
	"静岡市":   "静岡県",
	"浜松市":   "静岡県",
	"名古屋市":  "愛知県",
	"京都市":   "京都府",
	"大阪市":   "大阪府",
	"堺市":    "大阪府",
	"神戸市":   "兵庫県",
	"岡山市":   "岡山県",
	"広島市":   "広島県",
	"北九州市":  "福岡県",
	"福岡市":   "福岡県",
	"熊本市":   "熊本県",

	// 東京23区でよく入力されるもの
	"千代田区": "東京都",
	"中央区":  "東京都",
	"港区":   "東京都",
	"新宿区":  "東京都",
	"渋谷区":  "東京都",
	"世田谷区": "東京都",
	"品川区":  "東京都",
	"目黒区":  "東京都",
	"大田区":  "東京都",
	"杉並区":  "東京都",
	"豊島区":  "東京都",
	"練馬区":  "東京都",
	"足立区":  "東京都",
	"江戸川区": "東京都",
	"板橋区":  "東京都",

	// 県名と市名が一致しない主要都市
	"宇都宮市": "栃木県",
	"前橋市":  "群馬県",
	"水戸市":  "茨城県",
	"甲府市":  "山梨県",
	"金沢市":  "石川県",
	"松本市":  "長野県",
	"津市":   "三重県",
	"大津市":  "滋賀県",
	"松江市":  "島根県",
	"高松市":  "香川県",
	"松山市":  "愛媛県",
	"那覇市":  "沖縄県",
}

// DefaultAliases returns a copy of the built-in city alias table.
func DefaultAliases() map[string]string {
	out := make(map[string]string, len(defaultAliases))
	for city, prefecture := range defaultAliases {
		out[city] = prefecture
	}
	return out
}
