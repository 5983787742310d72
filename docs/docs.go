// Package docs 由 swag 维护的接口文档描述
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["系统"],
                "summary": "健康检查",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["认证"],
                "summary": "注册新用户",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Conflict"}
                }
            }
        },
        "/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["认证"],
                "summary": "用户登录",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/topics": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["学习"],
                "summary": "开始学习新主题",
                "responses": {
                    "201": {"description": "Created"}
                }
            },
            "get": {
                "produces": ["application/json"],
                "tags": ["学习"],
                "summary": "学习历史",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/topics/{attemptId}/roadmap": {
            "get": {
                "produces": ["application/json"],
                "tags": ["学习"],
                "summary": "获取顶层路线图",
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/topics/{attemptId}/nodes": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["学习"],
                "summary": "获取课程内容",
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/topics/{attemptId}/nodes/quiz": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["学习"],
                "summary": "提交测验结果",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/gamification/leaderboard": {
            "get": {
                "produces": ["application/json"],
                "tags": ["游戏化"],
                "summary": "经验值排行榜",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/risk/{userId}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["风险"],
                "summary": "流失风险评估",
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "模型未训练"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "LearnAI 后端 API",
	Description:      "AI 辅助学习平台的后端服务器。",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
