package main

// General API documentation for swaggo. Run `make swagger-gen` to regenerate
// the docs package.
//
// @title           rkllmd API
// @version         1.0
// @description     HTTP API for Rockchip NPU model management and inference.
//
// @contact.name   rkllmd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
