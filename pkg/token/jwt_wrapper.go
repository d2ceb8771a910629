package token

import "washery_chat/pkg/config"

// 這個變數會在測試時被覆蓋
var (
	GenerateJWTFunc    = GenerateJWT
	SubjectFromTokenFn = SubjectFromToken
)

// GenerateJWTWrapper 用 chat client 名稱當 issuer 產生 token
func GenerateJWTWrapper(memberID, role string) (string, error) {
	return GenerateJWTFunc(memberID, role, config.EnvConfig.ChatClient)
}

// CurrentUserID 從 token 取得目前登入者 id
func CurrentUserID(t string) (string, error) {
	return SubjectFromTokenFn(t)
}
