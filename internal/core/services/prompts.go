package services

import (
	"strings"

	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
	"github.com/custodia-labs/bilgi/internal/logger"
)

// Fallback prompts used when no PromptStore is configured.
const (
	defaultAnswerSystemPrompt = `Sen şirketin kurumsal bilgi asistanısın. Soruları yalnızca aşağıda numaralandırılmış bağlam bloklarına dayanarak Türkçe yanıtla.
Bağlamda olmayan bir bilgiyi uydurma. "WEB" olarak işaretlenmiş bloklar internetten alınmıştır; bunu yanıtında belirt.`

	defaultWebHeaderPrompt = `[WEB ARAMA SONUÇLARI] Aşağıdaki bilgiler internetten alınmıştır ve şirket belgelerinde yer almamaktadır.`

	defaultNoInformationPrompt = `Bu konuda şirket belgelerinde veya web aramasında bilgi bulunamadı.`

	defaultDegradedPrompt = `Üzgünüm, şu anda bu soruyu yanıtlayamıyorum. Lütfen biraz sonra tekrar deneyin.`
)

// loadPrompt loads a prompt from the store, falling back to the default if unavailable.
func loadPrompt(store driven.PromptStore, name, fallback string) string {
	if store == nil {
		return fallback
	}
	prompt, err := store.Load(name)
	if err != nil || strings.TrimSpace(prompt) == "" {
		if err != nil {
			logger.Debug("prompt %s unavailable, using default: %v", name, err)
		}
		return fallback
	}
	return strings.TrimSpace(prompt)
}
