package model

import "fmt"

// ColorKind はColorの表現種別を表す。
type ColorKind string

const (
	// ColorPalette は定義済みパレット名による色指定。
	ColorPalette ColorKind = "palette"
	// ColorHex は16進カラーコード（#RRGGBB）による色指定。
	ColorHex ColorKind = "hex"
)

// Color は顧客に割り当てる色を表すタグ付き値。
// パレット名と16進コードの2表現を取り、描画側はKindで分岐できる。
// 文字列を毎回正規表現で判別し直すことを避けるため、パース時に1回だけ種別を確定する。
type Color struct {
	Kind  ColorKind
	Value string
}

// palette は選択可能な定義済みカラー名。順序は既定色のローテーションに使用する。
var palette = []string{
	"red", "orange", "amber", "yellow",
	"lime", "green", "emerald", "teal",
	"cyan", "sky", "blue", "indigo",
	"violet", "purple", "fuchsia", "pink",
}

// Palette は定義済みカラー名の一覧をコピーして返す。
func Palette() []string {
	out := make([]string, len(palette))
	copy(out, palette)
	return out
}

// DefaultColorAt は既定色ローテーションのi番目の色を返す。
// 顧客追加フォームの初期値として、既存顧客数を渡して使用する。
func DefaultColorAt(i int) Color {
	if i < 0 {
		i = 0
	}
	return Color{Kind: ColorPalette, Value: palette[i%len(palette)]}
}

// ParseColor は保存表現の文字列をColorにパースする。
// "#RRGGBB"形式は16進コード、パレット名はパレット色として解釈する。
// どちらでもない場合はエラーを返す。
func ParseColor(raw string) (Color, error) {
	if isHexCode(raw) {
		return Color{Kind: ColorHex, Value: raw}, nil
	}
	for _, name := range palette {
		if raw == name {
			return Color{Kind: ColorPalette, Value: raw}, nil
		}
	}
	return Color{}, fmt.Errorf("invalid color: %q", raw)
}

// String は保存表現の文字列を返す。ParseColorと往復可能。
func (c Color) String() string {
	return c.Value
}

// isHexCode は文字列が#RRGGBB形式の16進カラーコードかを判定する。
func isHexCode(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
