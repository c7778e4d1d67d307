package algo

// 优先队列中的元素
type Item struct {
	Value    int     // 结点编号
	Priority float64 // 越小越优先
	Index    int     // 在堆中的下标，供heap.Fix使用
}

type PathItem[NT any, ET any] struct {
	NodeAttr NT
	EdgeAttr ET
}
