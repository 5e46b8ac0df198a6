// Package auth は認証・認可機能を提供します。
//
// パスワードは平文では保存せず、利用者ごとの64バイトのソルトと
// scrypt による導出鍵（192バイト）の組で保持します。
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	saltSize = 64

	// scrypt パラメータ
	scryptN   = 1 << 17
	scryptR   = 8
	scryptP   = 1
	keyLength = 192

	// 導出処理のワーキングセットに許容するメモリ上限。
	// scrypt は約 128*r*N バイトを要求するため、N=2^17 でもこの上限に収まる。
	maxMemory = 144 * 1024 * 1024
)

// ErrHashing はハッシュ値計算の失敗を表します。内部エラーとして扱い、
// パラメータの詳細をクライアントへ返してはいけません。
var ErrHashing = errors.New("ハッシュ値計算エラー")

// GenerateSalt はソルト用の64バイトの乱数列を生成します。
// 乱数源の失敗は回復不能なエラーとして呼び出し元へ返します。
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey はパスワードとソルトから scrypt で鍵を導出します。
// パスワードは導出前に NFC 正規化するため、符号化だけが異なる
// 等価な文字列は同一の鍵になります。同じ入力に対しては常に同じ鍵を返します。
func DeriveKey(password string, salt []byte) ([]byte, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: salt is empty", ErrHashing)
	}
	if required := 128 * scryptR * scryptN; required > maxMemory {
		return nil, fmt.Errorf("%w: memory ceiling too small", ErrHashing)
	}

	normalized := norm.NFC.String(password)
	key, err := scrypt.Key([]byte(normalized), salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return key, nil
}

// VerifyPassword は候補パスワードを保存済みのソルトで導出し、保存済みハッシュと
// 比較します。比較はタイミング攻撃を防ぐため定数時間で行います。
func VerifyPassword(candidate string, salt, storedHash []byte) (bool, error) {
	derived, err := DeriveKey(candidate, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(derived, storedHash) == 1, nil
}
