package dispatch

import (
	"github.com/Cloudtempmonitor/templogger/internal/models"
)

// Outcome 单个接收方的投递结果
type Outcome struct {
	Recipient string
	Err       error
}

// Result 一个渠道的汇总结果
type Result struct {
	Channel      models.Channel
	SuccessCount int
	FailureCount int
	Outcomes     []Outcome
}

// Attempted 是否实际尝试过投递
func (r Result) Attempted() bool {
	return len(r.Outcomes) > 0
}

func (r *Result) add(recipient string, err error) {
	r.Outcomes = append(r.Outcomes, Outcome{Recipient: recipient, Err: err})
	if err != nil {
		r.FailureCount++
		return
	}
	r.SuccessCount++
}
