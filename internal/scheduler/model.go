package scheduler

// workloadCounter: 记录本次生成运行中每个员工已被分配的天数
// 只在一次 Schedule 调用内存在，不持久化，也绝不能跨调用或跨部门共享
type workloadCounter map[int64]int32

// candidate: 某天某个班次的一个候选员工
type candidate struct {
	userID   int64
	userName string
	workload int32 // 取候选池时刻的已分配天数，用于公平性排序
}
