package callback

import (
	"sync"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"

	"storyforge/internal/domain/service"
)

var (
	initOnce sync.Once
	pending  = &pendingUsage{}
)

// Init 注册 Eino 全局 callbacks（进程级一次）。usageRecorder 可为 nil。
func Init(usageRecorder service.LLMUsageRecorder) {
	initOnce.Do(func() {
		handler := cbtemplate.NewHandlerHelper().
			ChatModel(newChatModelCallbackHandler(usageRecorder, pending)).
			Handler()
		einocallbacks.AppendGlobalHandlers(handler)
	})
}

// Pending 返回全局回调的用量等待器，供配额检查在读取计数前调用。
func Pending() service.UsageFlusher {
	return pending
}
