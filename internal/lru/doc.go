// Package lru 實作固定容量的 LRU（Least Recently Used）快取。
//
// 資料結構：
//
//	index: map[K]int32      key -> arena 槽位
//	nodes: []node           扁平陣列（arena），prev/next 以索引代替指標
//	free:  []int32          被 Remove 回收的槽位
//	head/tail               最近使用 / 最久未使用
//
// 為何使用 arena 而非 container/list？
//   - 每個節點不需要獨立的堆積配置，容量固定時記憶體一次到位
//   - 沒有指標循環，map 存的是索引，重新連結只是改整數
//   - Put / Get / 淘汰都是 O(1)
//
// 重要：Get 不是純讀取。
//
// 命中時 Get 會把 key 移到最近使用的位置，也就是說它會修改內部狀態。
// 兩個後果：
//   - 併發使用時，Get 也必須持有互斥鎖（見 Synced），讀寫鎖的讀鎖不夠
//   - 只想檢查內容而不影響淘汰順序時，使用 Peek 或 Contains
//
// 容量為 0 或負數時 New 返回 ErrInvalidCapacity，不存在「永遠立刻淘汰」的快取。
package lru
