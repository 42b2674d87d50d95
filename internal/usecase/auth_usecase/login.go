package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
)

// handlerからusecaseに渡す入力
type LoginInput struct {
	Email    string
	Password string
	// ログイン前に使っていた匿名カートのトークン
	CartToken string
}

// token 形（JwtAccessToken相当）
type JwtAccessToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// handlerがJSONにして返す
type LoginOutput struct {
	User  model.User     `json:"user"`
	Token JwtAccessToken `json:"token"`
}

// handlerがCookieに詰めるために必要な値
type LoginSideEffect struct {
	CartToken string
}

// メールまたはパスワードが違う
var ErrInvalidCredentials = errors.New("invalid credentials")

// 停止済みユーザー
var ErrUserInactive = errors.New("user is inactive")

// JWTを発行する約束
type AccessTokenIssuer interface {
	Issue(userID int64, role model.Role, tokenVersion int, now time.Time) (token string, expiresAt time.Time, err error)
}

// 入力パスワードと保存したハッシュを比べる約束
type PasswordVerifier interface {
	Verify(plain string, hashed string) bool
}

// 匿名カートをユーザーのカートに取り込む約束
type CartMerger interface {
	MergeOnLogin(ctx context.Context, userID int64, anonymousToken string) (model.Cart, error)
}

type LoginUsecase struct {
	userRepo  repository.UserRepository
	validator CredentialsValidator
	verifier  PasswordVerifier
	issuer    AccessTokenIssuer
	carts     CartMerger
	clock     Clock
}

func NewLoginUsecase(
	userRepo repository.UserRepository,
	validator CredentialsValidator,
	verifier PasswordVerifier,
	issuer AccessTokenIssuer,
	carts CartMerger,
	clock Clock,
) *LoginUsecase {
	return &LoginUsecase{
		userRepo:  userRepo,
		validator: validator,
		verifier:  verifier,
		issuer:    issuer,
		carts:     carts,
		clock:     clock,
	}
}

// ログイン処理を実行する
// 認証に成功したら匿名カートをマージして、使うべきカートのトークンを返す
func (u *LoginUsecase) Execute(ctx context.Context, in LoginInput) (LoginOutput, LoginSideEffect, error) {
	var out LoginOutput
	var side LoginSideEffect

	email := strings.TrimSpace(in.Email)
	if err := u.validator.ValidateLogin(email, in.Password); err != nil {
		return out, side, ErrInvalidCredentials
	}

	//emailでユーザー取得
	user, err := u.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return out, side, ErrInvalidCredentials
		}
		return out, side, err
	}

	//停止ユーザーはログイン不可
	if !user.IsActive {
		return out, side, ErrUserInactive
	}

	//パスワード照合
	if ok := u.verifier.Verify(in.Password, user.PasswordHash); !ok {
		return out, side, ErrInvalidCredentials
	}

	//AccessToken発行
	now := u.clock.Now()
	accessToken, accessExp, err := u.issuer.Issue(user.ID, user.Role, user.TokenVersion, now)
	if err != nil {
		return out, side, err
	}

	//カートのマージは1ログインにつき1回だけ
	if u.carts != nil {
		cart, err := u.carts.MergeOnLogin(ctx, user.ID, in.CartToken)
		if err != nil {
			return out, side, err
		}
		side.CartToken = cart.Token
	}

	//最終ログイン時刻更新
	user.LastLoginAt = &now
	if err := u.userRepo.Update(ctx, user); err != nil {
		return out, side, err
	}

	out.User = *user
	out.Token = JwtAccessToken{
		AccessToken: accessToken,
		ExpiresIn:   int(accessExp.Sub(now).Seconds()),
	}
	return out, side, nil
}
