package entity

import (
	"genstudio/internal/entity/common"
)

type JSONMap = common.JSONMap
type Meta = common.Meta
type BaseParams = common.BaseParams
type Modality = common.Modality

const (
	ModImage = common.ModImage
	ModVideo = common.ModVideo
)
