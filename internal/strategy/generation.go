package strategy

import "github.com/cespare/xxhash/v2"

// generationStripes 世代計數的分段數
const generationStripes = 256

// generations 記錄每個 key 被寫入或刪除的次數，用來判斷回填是否過期。
//
// 回填流程：
//
//	讀後端前記下 g0 := gens.load(key)
//	讀完後持鎖比較，g0 != gens.load(key) 表示期間有寫入，放棄回填
//
// 以雜湊分段代替 map，記憶體固定。不同 key 落在同一段只會多放棄一次回填。
// 不是併發安全的，呼叫端必須持有同一把鎖。
type generations struct {
	stripes [generationStripes]uint64
}

func (g *generations) slot(key string) *uint64 {
	return &g.stripes[xxhash.Sum64String(key)%generationStripes]
}

func (g *generations) load(key string) uint64 {
	return *g.slot(key)
}

func (g *generations) bump(key string) {
	*g.slot(key)++
}
