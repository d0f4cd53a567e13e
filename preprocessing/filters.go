package preprocessing

import (
	"sort"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

// DropMissing は欠損値を1つでも含む列を取り除く
//
// パラメータ:
//   - df: 入力テーブル
//   - exclude: 判定対象から外す列（ラベル列など）
//
// 戻り値:
//   - dataframe.DataFrame: 欠損のない列だけのテーブル
//   - []string: 取り除いた列名（元の列順）
//   - error: 列選択に失敗した場合
func DropMissing(df dataframe.DataFrame, exclude ...string) (dataframe.DataFrame, []string, error) {
	skip := toSet(exclude)
	var dropped []string
	for _, name := range df.Names() {
		if _, ok := skip[name]; ok {
			continue
		}
		if df.Col(name).HasNaN() {
			dropped = append(dropped, name)
		}
	}
	out, err := dropColumns(df, dropped)
	return out, dropped, err
}

// NZVStat は near-zero-variance 判定に使う列ごとの統計量
type NZVStat struct {
	Column        string
	FreqRatio     float64
	PercentUnique float64
	ZeroVar       bool
	NZV           bool
}

// ColumnNZV は1列分の統計量を計算する
// 欠損値は頻度表から除外されるが、percentUnique の分母には含まれる
func ColumnNZV(s series.Series, freqCut, uniqueCut float64) NZVStat {
	counts := make(map[string]int)
	isNaN := s.IsNaN()
	if s.Type() == series.String {
		for i, v := range s.Records() {
			if !isNaN[i] {
				counts[v]++
			}
		}
	} else {
		for i, v := range s.Float() {
			if !isNaN[i] {
				counts[formatKey(v)]++
			}
		}
	}

	freqs := make([]int, 0, len(counts))
	for _, c := range counts {
		freqs = append(freqs, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(freqs)))

	stat := NZVStat{Column: s.Name}
	if len(freqs) > 1 {
		stat.FreqRatio = float64(freqs[0]) / float64(freqs[1])
	}
	if n := s.Len(); n > 0 {
		stat.PercentUnique = 100 * float64(len(freqs)) / float64(n)
	}
	stat.ZeroVar = len(freqs) < 2
	stat.NZV = stat.ZeroVar || (stat.FreqRatio > freqCut && stat.PercentUnique <= uniqueCut)
	return stat
}

// NearZeroVariance は分散がほぼゼロの列を取り除く
// 最頻値と2番目の値の頻度比が freqCut を超え、かつユニーク値の割合(%)が
// uniqueCut 以下の列、または値が1種類しかない列が対象
func NearZeroVariance(df dataframe.DataFrame, freqCut, uniqueCut float64, exclude ...string) (dataframe.DataFrame, []NZVStat, error) {
	if freqCut < 1 {
		return df, nil, errors.NewValidationError("freq_cut", "must be >= 1", freqCut)
	}
	if uniqueCut < 0 || uniqueCut > 100 {
		return df, nil, errors.NewValidationError("unique_cut", "must be in [0, 100]", uniqueCut)
	}

	skip := toSet(exclude)
	var stats []NZVStat
	var dropped []string
	for _, name := range df.Names() {
		if _, ok := skip[name]; ok {
			continue
		}
		st := ColumnNZV(df.Col(name), freqCut, uniqueCut)
		stats = append(stats, st)
		if st.NZV {
			dropped = append(dropped, name)
		}
	}
	out, err := dropColumns(df, dropped)
	return out, stats, err
}

func dropColumns(df dataframe.DataFrame, names []string) (dataframe.DataFrame, error) {
	if len(names) == 0 {
		return df, nil
	}
	if len(names) == df.Ncol() {
		return dataframe.DataFrame{}, errors.NewValueError("preprocessing", "every column would be removed")
	}
	out := df.Drop(names)
	if out.Err != nil {
		return df, errors.Wrap(out.Err, "preprocessing: drop columns")
	}
	return out, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func formatKey(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
