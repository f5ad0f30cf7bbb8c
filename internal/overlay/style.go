package overlay

// Style holds the colors and sizes used when materialising annotations.
type Style struct {
	TrendColor      string  `yaml:"trend_color"`
	SupportColor    string  `yaml:"support_color"`
	ResistanceColor string  `yaml:"resistance_color"`
	LineWidth       float64 `yaml:"line_width"`

	BuyColor    string  `yaml:"buy_color"`
	SellColor   string  `yaml:"sell_color"`
	NoteColor   string  `yaml:"note_color"`
	PointRadius float64 `yaml:"point_radius"`

	EntryColor  string  `yaml:"entry_color"`
	TPColor     string  `yaml:"tp_color"`
	SLColor     string  `yaml:"sl_color"`
	TPZoneFill  string  `yaml:"tp_zone_fill"`
	SLZoneFill  string  `yaml:"sl_zone_fill"`
	InfoColor   string  `yaml:"info_color"`
	InfoOffsetX float64 `yaml:"info_offset_days"`

	HighlightColor string  `yaml:"highlight_color"`
	HighlightWidth float64 `yaml:"highlight_width"`

	// LabelWidth and LabelHeight size the hit box drawn above label anchors.
	LabelWidth  float64 `yaml:"label_width"`
	LabelHeight float64 `yaml:"label_height"`

	CrosshairColor  string `yaml:"crosshair_color"`
	PreviewColor    string `yaml:"preview_color"`
	PredictionColor string `yaml:"prediction_color"`
	BandColor       string `yaml:"band_color"`
	BoundaryColor   string `yaml:"boundary_color"`
	IndicatorColor  string `yaml:"indicator_color"`
	CandleUpColor   string `yaml:"candle_up_color"`
	CandleDownColor string `yaml:"candle_down_color"`
}

func DefaultStyle() Style {
	return Style{
		TrendColor:      "#2962ff",
		SupportColor:    "#26a69a",
		ResistanceColor: "#ef5350",
		LineWidth:       2,
		BuyColor:        "#26a69a",
		SellColor:       "#ef5350",
		NoteColor:       "#ffb300",
		PointRadius:     6,
		EntryColor:      "#90a4ae",
		TPColor:         "#26a69a",
		SLColor:         "#ef5350",
		TPZoneFill:      "rgba(38,166,154,0.15)",
		SLZoneFill:      "rgba(239,83,80,0.15)",
		InfoColor:       "#ffffff",
		InfoOffsetX:     1,
		HighlightColor:  "#ffeb3b",
		HighlightWidth:  2,
		LabelWidth:      100,
		LabelHeight:     22,
		CrosshairColor:  "rgba(200,200,200,0.6)",
		PreviewColor:    "rgba(41,98,255,0.6)",
		PredictionColor: "#ab47bc",
		BandColor:       "rgba(171,71,188,0.4)",
		BoundaryColor:   "#78909c",
		IndicatorColor:  "rgba(255,152,0,0.7)",
		CandleUpColor:   "#26a69a",
		CandleDownColor: "#ef5350",
	}
}

// Merge fills zero fields of s from def.
func (s Style) Merge(def Style) Style {
	str := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	num := func(v *float64, d float64) {
		if *v <= 0 {
			*v = d
		}
	}
	str(&s.TrendColor, def.TrendColor)
	str(&s.SupportColor, def.SupportColor)
	str(&s.ResistanceColor, def.ResistanceColor)
	num(&s.LineWidth, def.LineWidth)
	str(&s.BuyColor, def.BuyColor)
	str(&s.SellColor, def.SellColor)
	str(&s.NoteColor, def.NoteColor)
	num(&s.PointRadius, def.PointRadius)
	str(&s.EntryColor, def.EntryColor)
	str(&s.TPColor, def.TPColor)
	str(&s.SLColor, def.SLColor)
	str(&s.TPZoneFill, def.TPZoneFill)
	str(&s.SLZoneFill, def.SLZoneFill)
	str(&s.InfoColor, def.InfoColor)
	num(&s.InfoOffsetX, def.InfoOffsetX)
	str(&s.HighlightColor, def.HighlightColor)
	num(&s.HighlightWidth, def.HighlightWidth)
	num(&s.LabelWidth, def.LabelWidth)
	num(&s.LabelHeight, def.LabelHeight)
	str(&s.CrosshairColor, def.CrosshairColor)
	str(&s.PreviewColor, def.PreviewColor)
	str(&s.PredictionColor, def.PredictionColor)
	str(&s.BandColor, def.BandColor)
	str(&s.BoundaryColor, def.BoundaryColor)
	str(&s.IndicatorColor, def.IndicatorColor)
	str(&s.CandleUpColor, def.CandleUpColor)
	str(&s.CandleDownColor, def.CandleDownColor)
	return s
}
