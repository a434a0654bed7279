package entity

// UserUpdates 用户更新字段
type UserUpdates struct {
	DisplayName  *string
	Tier         *Tier
	PasswordHash *string
	IsActive     *bool
	ImageCredits *int
	VideoCredits *int
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u UserUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.DisplayName != nil {
		updates["display_name"] = *u.DisplayName
	}
	if u.Tier != nil {
		updates["tier"] = string(*u.Tier)
	}
	if u.PasswordHash != nil {
		updates["password_hash"] = *u.PasswordHash
	}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	if u.ImageCredits != nil {
		updates["image_credits"] = *u.ImageCredits
	}
	if u.VideoCredits != nil {
		updates["video_credits"] = *u.VideoCredits
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u UserUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// CredentialUpdates 单个服务商凭据的更新字段
type CredentialUpdates struct {
	APIKey *string
	Model  *string
}

// ToMap 转换为带列前缀的更新 map
func (u CredentialUpdates) ToMap(provider ProviderID) map[string]interface{} {
	prefix := credentialColumnPrefix(provider)
	updates := make(map[string]interface{})
	if prefix == "" {
		return updates
	}
	if u.APIKey != nil {
		updates[prefix+"api_key"] = *u.APIKey
	}
	if u.Model != nil {
		updates[prefix+"model"] = *u.Model
	}
	return updates
}
