package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-ads/internal/model"
	"github.com/eidos-exchange/eidos-ads/internal/repository"
	"github.com/eidos-exchange/eidos-ads/pkg/errors"
	"github.com/eidos-exchange/eidos-ads/pkg/logger"
	"github.com/eidos-exchange/eidos-ads/pkg/wallet"
)

// DeveloperService 开发者钱包与推荐码服务
type DeveloperService struct {
	devRepo repository.DeveloperRepository
}

// NewDeveloperService 创建开发者服务
func NewDeveloperService(devRepo repository.DeveloperRepository) *DeveloperService {
	return &DeveloperService{devRepo: devRepo}
}

// BindWalletRequest 绑定钱包请求
//
// Signature 是开发者用待绑定钱包对 Message 做 personal_sign
// 的结果，证明其对该地址的控制权。
type BindWalletRequest struct {
	DeveloperID   string
	WalletAddress string
	Message       string
	Signature     string
}

// BindWallet 校验签名后绑定钱包并生成推荐码
//
// 钱包一经绑定不可变更；推荐码由钱包地址确定性派生，
// 同一钱包永远得到同一个码。
func (s *DeveloperService) BindWallet(ctx context.Context, req *BindWalletRequest) (*model.Developer, error) {
	if !wallet.IsValidAddress(req.WalletAddress) {
		return nil, errors.ErrInvalidAddress
	}
	if !wallet.VerifySignature(req.Message, req.Signature, req.WalletAddress) {
		return nil, errors.ErrInvalidSignature
	}

	addr := wallet.NormalizeAddress(req.WalletAddress)
	code := wallet.ReferralCode(addr)

	err := s.devRepo.BindWallet(ctx, req.DeveloperID, addr, code)
	switch err {
	case nil:
	case repository.ErrDeveloperNotFound:
		return nil, errors.ErrDeveloperNotFound
	case repository.ErrWalletImmutable:
		return nil, errors.ErrWalletAlreadyBound
	case repository.ErrWalletConflict:
		return nil, errors.ErrWalletAlreadyBound.WithMessage("该钱包已绑定到其他开发者")
	default:
		return nil, err
	}

	logger.Info("wallet bound",
		zap.String("developer_id", req.DeveloperID),
		zap.String("wallet", addr),
		zap.String("referral_code", code))

	return s.devRepo.GetByID(ctx, req.DeveloperID)
}

// GetDeveloper 查询开发者
func (s *DeveloperService) GetDeveloper(ctx context.Context, id string) (*model.Developer, error) {
	dev, err := s.devRepo.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrDeveloperNotFound {
			return nil, errors.ErrDeveloperNotFound
		}
		return nil, err
	}
	return dev, nil
}

// RegisterDeveloper 注册开发者
func (s *DeveloperService) RegisterDeveloper(ctx context.Context, dev *model.Developer) error {
	return s.devRepo.Create(ctx, dev)
}

// GetByWallet 按钱包地址反查开发者，链上归因用
func (s *DeveloperService) GetByWallet(ctx context.Context, walletAddress string) (*model.Developer, error) {
	if !wallet.IsValidAddress(walletAddress) {
		return nil, errors.ErrInvalidAddress
	}
	dev, err := s.devRepo.GetByWallet(ctx, wallet.NormalizeAddress(walletAddress))
	if err != nil {
		if err == repository.ErrDeveloperNotFound {
			return nil, errors.ErrDeveloperNotFound
		}
		return nil, err
	}
	return dev, nil
}
